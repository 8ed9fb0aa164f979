package model

// JobState is a pipeline stage reached by a job.
type JobState string

const (
	StateStaged             JobState = "STAGED"
	StateDurationRead       JobState = "DURATION_READ"
	StateFramesSampled      JobState = "FRAMES_SAMPLED"
	StateSheetComposed      JobState = "SHEET_COMPOSED"
	StateIdentityRecognized JobState = "IDENTITY_RECOGNIZED"
	StateTrackSelected      JobState = "TRACK_SELECTED"
	StateMuxed              JobState = "MUXED"
	StateLedgerRecorded     JobState = "LEDGER_RECORDED"
	StateFailed             JobState = "FAILED"
)

// PipelineStates lists the success path in order.
var PipelineStates = []JobState{
	StateStaged, StateDurationRead, StateFramesSampled, StateSheetComposed,
	StateIdentityRecognized, StateTrackSelected, StateMuxed, StateLedgerRecorded,
}

// Terminal reports whether no further transition can happen.
func (s JobState) Terminal() bool {
	return s == StateLedgerRecorded || s == StateFailed
}

// Progress maps a state onto a 0..100 scale for progress reporting.
func (s JobState) Progress() int {
	for i, st := range PipelineStates {
		if st == s {
			return i * 100 / (len(PipelineStates) - 1)
		}
	}
	return 0
}

// Job status of an asynchronous job record
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)
