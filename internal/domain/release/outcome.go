package release

import "fmt"

// State is a terminal state of an install attempt.
type State string

// Terminal states. Exactly one is reported per attempt.
const (
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	StateAborted    State = "aborted"
)

// Reason qualifies a terminal state for the user.
type Reason string

// Reasons attached to outcomes.
const (
	ReasonInstalled            Reason = "installed"
	ReasonUpToDate             Reason = "up_to_date"
	ReasonManualUpdateRequired Reason = "manual_update_required"
	ReasonRolledBack           Reason = "rolled_back"
	ReasonFailed               Reason = "failed"
)

// Outcome is the single, fully resolved result of an install attempt.
type Outcome struct {
	State          State
	Reason         Reason
	SessionID      string
	CurrentVersion string
	NewVersion     string
	// Err is the failure that caused RolledBack or a failed Aborted outcome.
	Err error
}

// Succeeded reports whether a new binary is now installed.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.State == StateCommitted
}

// Message returns the short user-visible description of the outcome.
func (o *Outcome) Message() string {
	if o == nil {
		return ""
	}

	switch o.Reason {
	case ReasonInstalled:
		return fmt.Sprintf("Updated to %s. Restart to use the new version.", o.NewVersion)
	case ReasonUpToDate:
		return fmt.Sprintf("Already up to date (%s).", o.CurrentVersion)
	case ReasonManualUpdateRequired:
		return "Cannot self-update: the application is installed in a location that is not writable. Please update manually."
	case ReasonRolledBack:
		return fmt.Sprintf("Update to %s failed verification and was rolled back: %v", o.NewVersion, o.Err)
	case ReasonFailed:
		return fmt.Sprintf("Update failed: %v", o.Err)
	default:
		return string(o.State)
	}
}
