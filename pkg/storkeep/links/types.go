package links

import "fmt"

// State classifies a configured symlink pair after a verify pass.
type State string

// Symlink states from healthy to most degraded.
const (
	// StateOK means the link exists, is a symlink, and points at the
	// configured target, which exists.
	StateOK State = "OK"

	// StateAbsent means the link has not been created yet; the target
	// exists and creation would succeed.
	StateAbsent State = "ABSENT"

	// StateBroken means the link points at the configured target but the
	// target no longer exists (dangling symlink).
	StateBroken State = "BROKEN"

	// StateWrongTarget means something exists at the link path that is not
	// a symlink to the configured target: a symlink elsewhere, or a real
	// file or directory.
	StateWrongTarget State = "WRONG_TARGET"

	// StateMissingTarget means neither the link nor the configured target
	// exists; there is nothing to point at.
	StateMissingTarget State = "MISSING_TARGET"
)

// Healthy reports whether the state requires no action.
func (s State) Healthy() bool {
	return s == StateOK
}

// Entry is one configured symlink pair with its observed state. Entries are
// produced fresh by each verify pass and never persisted.
type Entry struct {
	// Link is the stable path the symlink lives at.
	Link string `json:"link"`

	// Target is the configured destination the link should point to.
	Target string `json:"target"`

	// State is the observed classification.
	State State `json:"state"`

	// Detail carries the observed actual target or a failure reason.
	Detail string `json:"detail,omitempty"`
}

// Failure pairs an entry with the error that prevented its operation.
type Failure struct {
	Entry Entry `json:"entry"`

	// Err is the typed per-entry error (ConflictError, MissingTargetError,
	// PermissionError).
	Err error `json:"-"`

	// Reason is Err rendered for serialized reports.
	Reason string `json:"reason"`
}

// CreateResult summarizes one Create invocation. Created lists exactly the
// links made by this call, so a rollback removes only those and never
// pre-existing files.
type CreateResult struct {
	Created []Entry   `json:"created"`
	Skipped []Entry   `json:"skipped"`
	Failed  []Failure `json:"failed"`
}

// Partial reports whether some entries failed while others succeeded.
func (r *CreateResult) Partial() bool {
	return len(r.Failed) > 0
}

// RepairResult summarizes one Repair invocation.
type RepairResult struct {
	Repaired []Entry   `json:"repaired"`
	Healthy  []Entry   `json:"healthy"`
	Failed   []Failure `json:"failed"`
}

// Partial reports whether some entries could not be repaired.
func (r *RepairResult) Partial() bool {
	return len(r.Failed) > 0
}

// PrereqCheck is the observed state of one storage root.
type PrereqCheck struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	IsDir    bool   `json:"is_dir"`
	Writable bool   `json:"writable"`
}

// Problem describes why the check fails, or returns "" when it passes.
func (c PrereqCheck) Problem() string {
	switch {
	case !c.Exists:
		return fmt.Sprintf("%s does not exist", c.Path)
	case !c.IsDir:
		return fmt.Sprintf("%s is not a directory", c.Path)
	case !c.Writable:
		return fmt.Sprintf("%s is not writable", c.Path)
	default:
		return ""
	}
}

// PrereqReport aggregates prerequisite checks for the configured roots.
type PrereqReport struct {
	Checks []PrereqCheck `json:"checks"`
	OK     bool          `json:"ok"`
}

// Problems lists the failing checks as human-readable strings.
func (r *PrereqReport) Problems() []string {
	var problems []string
	for _, c := range r.Checks {
		if p := c.Problem(); p != "" {
			problems = append(problems, p)
		}
	}
	return problems
}

// DirReport summarizes one CreateDirs invocation.
type DirReport struct {
	Created  []string  `json:"created"`
	Existing []string  `json:"existing"`
	Failed   []Failure `json:"failed"`
}

// Partial reports whether some directories could not be created.
func (r *DirReport) Partial() bool {
	return len(r.Failed) > 0
}
