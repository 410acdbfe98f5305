package extraction

import "fmt"

// Job statuses.
const (
	StatusPending    = "pending"
	StatusExtracting = "extracting"
	StatusGenerating = "generating_dimensions"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var transitions = map[string][]string{
	StatusPending:    {StatusExtracting, StatusFailed},
	StatusExtracting: {StatusGenerating, StatusCompleted, StatusFailed},
	StatusGenerating: {StatusCompleted, StatusFailed},
}

// TransitionError reports a status change the job lifecycle does not allow.
type TransitionError struct {
	From, To string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid job transition from %q to %q", e.From, e.To)
}

// CanTransition reports whether a job may move from one status to another.
// Completed and failed jobs are terminal.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *TransitionError when from -> to is not allowed.
func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Terminal reports whether status is final.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Progress checkpoints and their step labels.
const (
	progressLoading    = 10
	progressPreparing  = 30
	progressIdentify   = 50
	progressSaving     = 70
	progressGenerating = 85
	progressDone       = 100
)
