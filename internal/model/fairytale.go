package model

import "time"

// FairytaleCreateRequest represents the request body for starting a generation
type FairytaleCreateRequest struct {
	Theme           string `json:"theme" validate:"required,min=1,max=500"`
	Characters      string `json:"characters" validate:"required,min=1,max=500"`
	DurationSeconds int    `json:"durationSeconds" validate:"required,min=10,max=180"`
}

// Brief converts the request into the immutable job input
func (r *FairytaleCreateRequest) Brief() Brief {
	return Brief{
		Theme:           r.Theme,
		Characters:      r.Characters,
		DurationSeconds: r.DurationSeconds,
	}.Trimmed()
}

// SubmitResponse is returned when a generation job was accepted
type SubmitResponse struct {
	JobID     string    `json:"jobId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegenerateAudioResponse is returned when an audio-only run was accepted
type RegenerateAudioResponse struct {
	Accepted bool   `json:"accepted"`
	JobID    string `json:"jobId"`
	Status   Status `json:"status"`
}

// FairytaleResponse is the client view of a job record
type FairytaleResponse struct {
	ID              string    `json:"id"`
	Theme           string    `json:"theme"`
	Characters      string    `json:"characters"`
	DurationSeconds int       `json:"durationSeconds"`
	Status          Status    `json:"status"`
	TextContent     string    `json:"textContent,omitempty"`
	AudioURL        string    `json:"audioUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// FairytaleListResponse wraps the jobs of one owner, newest first
type FairytaleListResponse struct {
	Count int                 `json:"count"`
	Data  []FairytaleResponse `json:"data"`
}

// ReclaimResponse reports the outcome of a stuck-job sweep
type ReclaimResponse struct {
	Reclaimed int `json:"reclaimed"`
}
