package reconcile

import "errors"

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

const (
	ReasonNewMember      = "New directory member."
	ReasonNotInDirectory = "not in directory, no purchases"
	ReasonMarkedDeleted  = "marked deleted in directory, no purchases"
)

// ErrDirectoryFetch wraps any roster page failure; reconciliation is
// all-or-nothing per run, so a single bad page aborts everything.
var ErrDirectoryFetch = errors.New("directory_fetch_failed")

// Change is one planned (dry run) or applied mutation, with a before/after
// snapshot of the changed fields only.
type Change struct {
	SlackID string         `json:"slack_id"`
	Action  string         `json:"action"`
	Reason  string         `json:"reason"`
	Before  map[string]any `json:"before,omitempty"`
	After   map[string]any `json:"after,omitempty"`
}

// Report is the full outcome of one reconciliation run. In dry-run mode it
// is the entire observable effect.
type Report struct {
	DryRun    bool `json:"dry_run"`
	Created   int  `json:"created"`
	Updated   int  `json:"updated"`
	Deleted   int  `json:"deleted"`
	Unchanged int  `json:"unchanged"`

	// Applied counts mutations actually committed. When a chunk fails
	// mid-run, Partial is set and Applied stays behind the planned total;
	// committed chunks remain applied.
	Applied int  `json:"applied"`
	Partial bool `json:"partial"`

	Changes []Change `json:"changes"`
}
