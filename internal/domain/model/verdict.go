package model

// Permission tags mark verdict content with the minimum role allowed to see
// it. Untagged content defaults to student-visible.
type Permission string

const (
	PermissionStudent Permission = "student"
	PermissionStaff   Permission = "staff"
)

type GroupKind string

const (
	GroupRoot     GroupKind = "root"
	GroupTab      GroupKind = "tab"
	GroupContext  GroupKind = "context"
	GroupTestcase GroupKind = "testcase"
	GroupTest     GroupKind = "test"
)

// Message is one line of judge feedback, optionally permission-tagged.
type Message struct {
	Format      string      `json:"format,omitempty"`
	Description string      `json:"description"`
	Permission  *Permission `json:"permission,omitempty"`
}

// VerdictGroup is one node of the verdict tree: root, tab, context, testcase
// or test. Groups nest root→tabs→contexts→testcases→tests.
type VerdictGroup struct {
	Kind        GroupKind       `json:"kind"`
	Description string          `json:"description,omitempty"`
	Permission  *Permission     `json:"permission,omitempty"`
	Accepted    *bool           `json:"accepted,omitempty"`
	Groups      []*VerdictGroup `json:"groups,omitempty"`
	Messages    []Message       `json:"messages,omitempty"`
}

// Verdict is the structured outcome returned by the runner for one
// submission: the fields applied to the submission row plus the message tree
// persisted to storage.
type Verdict struct {
	Status      string         `json:"status"`
	Accepted    bool           `json:"accepted"`
	Description string         `json:"description"`
	Groups      []*VerdictGroup `json:"groups,omitempty"`
	Messages    []Message      `json:"messages,omitempty"`
}

// EffectivePermission resolves an optional tag to its default.
func EffectivePermission(p *Permission) Permission {
	if p == nil {
		return PermissionStudent
	}
	return *p
}
