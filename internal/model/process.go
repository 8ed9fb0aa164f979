package model

import "encoding/json"

// ProcessResponse is returned once a job reaches LEDGER_RECORDED.
type ProcessResponse struct {
	JobID           string `json:"job_id"`
	ProcessedCount  int    `json:"processed_count"`
	SongArtist      string `json:"song_artist"`
	StartSeconds    int    `json:"start_seconds"`
	SelectedTrack   string `json:"selected_track"`
	DownloadURL     string `json:"download_url"`
	ContactSheetURL string `json:"contact_sheet_url"`
	PublicURL       string `json:"public_url,omitempty"`
}

// ProcessAsyncResponse represents the response when queueing a job
type ProcessAsyncResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// RatingRequest carries a 1..5 quality rating. json.Number keeps "3.5"
// distinguishable from 3 and accepts the value quoted or bare.
type RatingRequest struct {
	Rating json.Number `json:"rating" validate:"required"`
}

type RatingResponse struct {
	OK bool `json:"ok"`
}

type StatsResponse struct {
	ProcessedCount int `json:"processed_count"`
}
