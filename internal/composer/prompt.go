package composer

import (
	"strconv"
	"strings"

	"github.com/kalambet/recap/internal/memory"
)

const defaultMaxContextTokens = 4000

const contextInstructions = `IMPORTANT: Consider the context from previous meetings when analyzing this transcript.
- Reference any ongoing action items or decisions from previous meetings
- Identify connections between this meeting and previous discussions
- Note any updates on previously mentioned topics or tasks`

const preamble = "You are an expert meeting summarizer. Analyze this meeting transcript and extract key information."

const closing = "Return ONLY the JSON object, no other text. Make sure the JSON is valid and properly formatted."

// Composer builds the single generation request for one extraction from a
// context digest, the transcript and the fixed record schema.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for the injected
// digest. If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose returns the prompt for transcript. The previous-meeting block is
// included only for a non-empty digest other than memory.NoContext;
// context_connections is requested only when contextAware is set.
func (c *Composer) Compose(transcript, digest string, contextAware bool) string {
	var b strings.Builder

	if !memory.IsNoContext(digest) {
		b.WriteString("PREVIOUS MEETING CONTEXT:\n")
		b.WriteString(c.fit(digest))
		b.WriteString("\n\n")
		b.WriteString(contextInstructions)
		b.WriteString("\n\n")
	}

	b.WriteString(preamble)
	b.WriteString("\n\n")
	b.WriteString(schemaInstructions(contextAware))
	b.WriteString("\n\nCURRENT MEETING TRANSCRIPT:\n")
	b.WriteString(transcript)
	b.WriteString("\n\n")
	b.WriteString(closing)
	return b.String()
}

// fit trims the digest to the token budget, cutting at a line boundary.
func (c *Composer) fit(digest string) string {
	if EstimateTokens(digest) <= c.MaxContextTokens {
		return digest
	}
	limit := c.MaxContextTokens * 4
	if limit > len(digest) {
		limit = len(digest)
	}
	cut := digest[:limit]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut
}

func schemaInstructions(contextAware bool) string {
	fields := []string{
		`"tldr": A concise 2-3 sentence summary of the meeting`,
	}
	if contextAware {
		fields = append(fields, `"context_connections": Array of connections to previous meetings, each with:
   - "connection": Description of the connection
   - "reference": What it refers to from previous meetings`)
	}
	fields = append(fields,
		`"decisions": Array of decisions made, each with:
   - "decision": The decision made
   - "owner": Person responsible (if mentioned, otherwise null)
   - "context": Brief context explaining why`,
		`"action_items": Array of action items, each with:
   - "task": What needs to be done
   - "owner": Who is responsible (if mentioned, otherwise null)
   - "due_date": When it's due (if mentioned, otherwise null)`,
		`"risks": Array of risks or blockers identified (just strings)`,
		`"key_points": Array of main discussion points (strings)`,
	)

	var b strings.Builder
	b.WriteString("INSTRUCTIONS:\nExtract the following information and return it as valid JSON with these exact fields:\n")
	for i, f := range fields {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(f)
	}
	return b.String()
}

// EstimateTokens returns a rough token count for text (4 chars per token).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
