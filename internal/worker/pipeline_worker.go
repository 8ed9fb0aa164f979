package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/framebeat/api/internal/model"
	"github.com/framebeat/api/internal/service"
)

// Processor runs a staged upload through the pipeline.
type Processor interface {
	Process(ctx context.Context, jobID, uploadPath string, observer service.ProgressObserver) (*model.Job, error)
}

// JobRecorder persists asynchronous job status.
type JobRecorder interface {
	UpdateState(ctx context.Context, jobID string, state model.JobState) error
	CompleteJob(ctx context.Context, jobID string, result *model.ProcessResponse) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
}

// Broadcaster pushes updates to WebSocket subscribers.
type Broadcaster interface {
	OnTransition(job *model.Job)
	BroadcastComplete(jobID string, result *model.ProcessResponse)
	BroadcastError(jobID string, code, message string)
}

// PipelineWorker processes queued pipeline jobs
type PipelineWorker struct {
	pipeline Processor
	jobs     JobRecorder
	hub      Broadcaster
}

// NewPipelineWorker creates a new pipeline worker
func NewPipelineWorker(pipeline Processor, jobs JobRecorder, hub Broadcaster) *PipelineWorker {
	return &PipelineWorker{
		pipeline: pipeline,
		jobs:     jobs,
		hub:      hub,
	}
}

// ProcessTask handles pipeline task processing. Job failures are recorded
// and reported but not returned, so asynq never retries a job.
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", asynq.SkipRetry)
	}

	jobID := taskPayload.JobID
	logger := log.With().Str("jobId", jobID).Logger()
	logger.Info().Msg("starting pipeline job")

	var payload model.PipelineJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "INVALID_PAYLOAD", "Invalid payload")
		return fmt.Errorf("failed to unmarshal pipeline payload: %w", asynq.SkipRetry)
	}

	job, err := w.pipeline.Process(ctx, jobID, payload.UploadPath, &jobObserver{ctx: ctx, worker: w})
	if err != nil {
		pe := service.AsPipelineError(err)
		code := "PROCESSING_FAILED"
		if pe.Kind == service.KindSelection {
			code = "SELECTION_FAILED"
		}
		w.failJob(ctx, jobID, code, pe.Message())
		return nil
	}

	result := service.Response(job)
	if err := w.jobs.CompleteJob(ctx, jobID, result); err != nil {
		logger.Error().Err(err).Msg("failed to save job result")
	}
	w.hub.BroadcastComplete(jobID, result)
	logger.Info().Int("processedCount", job.ProcessedCount).Msg("pipeline job completed")
	return nil
}

func (w *PipelineWorker) failJob(ctx context.Context, jobID, code, msg string) {
	if err := w.jobs.FailJob(ctx, jobID, msg); err != nil {
		log.Error().Err(err).Str("jobId", jobID).Msg("failed to mark job failed")
	}
	w.hub.BroadcastError(jobID, code, msg)
}

// jobObserver mirrors running transitions into Redis and the hub.
type jobObserver struct {
	ctx    context.Context
	worker *PipelineWorker
}

func (o *jobObserver) OnTransition(job *model.Job) {
	if job.State.Terminal() {
		return
	}
	if err := o.worker.jobs.UpdateState(o.ctx, job.ID, job.State); err != nil {
		log.Warn().Err(err).Str("jobId", job.ID).Msg("failed to update job state")
	}
	o.worker.hub.OnTransition(job)
}
