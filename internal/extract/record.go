package extract

import "strings"

// DefaultTLDR is used when the model response carries no usable synopsis.
const DefaultTLDR = "No summary available"

// Record is the normalized structured result of one meeting extraction.
type Record struct {
	TLDR               string       `json:"tldr" yaml:"tldr" jsonschema:"required,description=A concise 2-3 sentence summary of the meeting"`
	Decisions          []Decision   `json:"decisions" yaml:"decisions" jsonschema:"required"`
	ActionItems        []ActionItem `json:"action_items" yaml:"action_items" jsonschema:"required"`
	Risks              []string     `json:"risks" yaml:"risks" jsonschema:"required,description=Risks or blockers identified"`
	KeyPoints          []string     `json:"key_points" yaml:"key_points" jsonschema:"required,description=Main discussion points"`
	ContextConnections []Connection `json:"context_connections" yaml:"context_connections" jsonschema:"required"`
}

// Decision is a decision made during a meeting.
type Decision struct {
	Decision string `json:"decision" yaml:"decision" jsonschema:"required"`
	Owner    string `json:"owner,omitempty" yaml:"owner,omitempty" jsonschema:"required,description=Person responsible or empty"`
	Context  string `json:"context,omitempty" yaml:"context,omitempty" jsonschema:"required,description=Brief context explaining why"`
}

// ActionItem is a follow-up task assigned during a meeting.
type ActionItem struct {
	Task    string `json:"task" yaml:"task" jsonschema:"required"`
	Owner   string `json:"owner,omitempty" yaml:"owner,omitempty" jsonschema:"required,description=Who is responsible or empty"`
	DueDate string `json:"due_date,omitempty" yaml:"due_date,omitempty" jsonschema:"required,description=When it is due or empty"`
}

// Connection ties the current meeting to an earlier one in the same thread.
type Connection struct {
	Connection string `json:"connection" yaml:"connection" jsonschema:"required"`
	Reference  string `json:"reference" yaml:"reference" jsonschema:"required"`
}

// Normalize fills every missing field with its default. Calling it on an
// already normalized record leaves the record unchanged.
func (r *Record) Normalize() {
	if strings.TrimSpace(r.TLDR) == "" {
		r.TLDR = DefaultTLDR
	}
	if r.Decisions == nil {
		r.Decisions = []Decision{}
	}
	if r.ActionItems == nil {
		r.ActionItems = []ActionItem{}
	}
	if r.Risks == nil {
		r.Risks = []string{}
	}
	if r.KeyPoints == nil {
		r.KeyPoints = []string{}
	}
	if r.ContextConnections == nil {
		r.ContextConnections = []Connection{}
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.Decisions = append([]Decision(nil), r.Decisions...)
	out.ActionItems = append([]ActionItem(nil), r.ActionItems...)
	out.Risks = append([]string(nil), r.Risks...)
	out.KeyPoints = append([]string(nil), r.KeyPoints...)
	out.ContextConnections = append([]Connection(nil), r.ContextConnections...)
	out.Normalize()
	return out
}
