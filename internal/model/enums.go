package model

// Status is the lifecycle stage of a fairytale generation job
type Status string

const (
	StatusPending           Status = "pending"
	StatusGenerating        Status = "generating"
	StatusRegeneratingAudio Status = "regenerating_audio"
	StatusCompleted         Status = "completed"
	StatusCompletedNoAudio  Status = "completed_no_audio"
	StatusFailed            Status = "failed"
)

var ValidStatuses = []Status{
	StatusPending, StatusGenerating, StatusRegeneratingAudio,
	StatusCompleted, StatusCompletedNoAudio, StatusFailed,
}

// transitions lists every status change the pipeline may apply.
// failed -> completed/completed_no_audio covers a run that finishes after the
// reclaimer already gave up on it; the later write wins.
// regenerating_audio -> regenerating_audio is a new request taking over a
// stale audio-only claim.
var transitions = map[Status][]Status{
	StatusPending:           {StatusGenerating, StatusFailed},
	StatusGenerating:        {StatusCompleted, StatusCompletedNoAudio, StatusFailed},
	StatusRegeneratingAudio: {StatusCompleted, StatusCompletedNoAudio, StatusRegeneratingAudio},
	StatusCompleted:         {StatusRegeneratingAudio},
	StatusCompletedNoAudio:  {StatusRegeneratingAudio},
	StatusFailed:            {StatusRegeneratingAudio, StatusCompleted, StatusCompletedNoAudio},
}

// IsValid reports whether s is one of the known statuses
func (s Status) IsValid() bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsRunning reports whether a pipeline run currently owns the job
func (s Status) IsRunning() bool {
	return s == StatusPending || s == StatusGenerating || s == StatusRegeneratingAudio
}

// RequiresText reports whether the status is only reachable with story text present
func (s Status) RequiresText() bool {
	return s == StatusCompleted || s == StatusCompletedNoAudio || s == StatusRegeneratingAudio
}
