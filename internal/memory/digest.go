package memory

import (
	"fmt"
	"strings"
)

// NoContext is returned by Digest for a thread without history. Callers
// treat it as "omit context", never as text for end users.
const NoContext = "No previous meeting context available."

const (
	digestActionItems = 10
	digestPeople      = 10
)

// IsNoContext reports whether digest carries no usable context.
func IsNoContext(digest string) bool {
	return strings.TrimSpace(digest) == "" || digest == NoContext
}

func renderDigest(h *ThreadHistory, maxRecords int) string {
	if h.Empty() {
		return NoContext
	}

	recent := h.Records
	if len(recent) > maxRecords {
		recent = recent[len(recent)-maxRecords:]
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("PREVIOUS %d MEETINGS CONTEXT:", len(recent)))
	for i, e := range recent {
		parts = append(parts, fmt.Sprintf("\nMeeting %d (%s):", i+1, e.Timestamp.Format("2006-01-02")))
		parts = append(parts, "  Summary: "+e.Record.TLDR)
		if n := len(e.Record.Decisions); n > 0 {
			parts = append(parts, fmt.Sprintf("  Key Decisions: %d", n))
		}
		if n := len(e.Record.ActionItems); n > 0 {
			parts = append(parts, fmt.Sprintf("  Action Items: %d", n))
		}
	}

	actions := h.Persistent.ActionItemsHistory
	if len(actions) > digestActionItems {
		actions = actions[len(actions)-digestActionItems:]
	}
	if len(actions) > 0 {
		parts = append(parts, fmt.Sprintf("\n\nRECENT ACTION ITEMS (%d):", len(actions)))
		for _, a := range actions {
			owner := a.Owner
			if owner == "" {
				owner = "N/A"
			}
			parts = append(parts, fmt.Sprintf("  - %s (Owner: %s)", a.Task, owner))
		}
	}

	if people := h.Persistent.KeyPeople; len(people) > 0 {
		if len(people) > digestPeople {
			people = people[:digestPeople]
		}
		parts = append(parts, "\n\nKEY PEOPLE INVOLVED:")
		parts = append(parts, "  "+strings.Join(people, ", "))
	}

	return strings.Join(parts, "\n")
}
