package model

import "time"

// Job is the state of one pipeline run. Every path is derived from ID.
type Job struct {
	ID            string       `json:"id"`
	UploadPath    string       `json:"-"`
	Duration      float64      `json:"duration"`
	FramePaths    []string     `json:"-"`
	SheetPath     string       `json:"-"`
	Identity      Identity     `json:"identity"`
	SelectedTrack string       `json:"selectedTrack,omitempty"`
	OutputPath    string       `json:"-"`
	State         JobState     `json:"state"`
	History       []Transition `json:"history"`
	Error         string       `json:"error,omitempty"`

	ProcessedCount int    `json:"processedCount,omitempty"`
	PublicURL      string `json:"publicUrl,omitempty"`
}

// Transition records when a job entered a state.
type Transition struct {
	State JobState  `json:"state"`
	At    time.Time `json:"at"`
}

// JobRecord is the status of an asynchronous job as stored in Redis.
type JobRecord struct {
	ID          string           `json:"id"`
	Status      JobStatus        `json:"status"`
	State       JobState         `json:"state"`
	Progress    int              `json:"progress"`
	Error       *string          `json:"error,omitempty"`
	Result      *ProcessResponse `json:"result,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// PipelineJobPayload carries an already staged upload to the worker.
type PipelineJobPayload struct {
	JobID      string `json:"jobId"`
	UploadPath string `json:"uploadPath"`
}
