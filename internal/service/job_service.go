package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/framebeat/api/internal/model"
)

const (
	TaskTypePipeline = "pipeline:process"
	QueuePipeline    = "pipeline"

	jobTTL = 24 * time.Hour
)

// JobService keeps asynchronous job status records in Redis and queues the
// pipeline task with asynq.
type JobService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

func NewJobService(redisClient *redis.Client, asynqClient *asynq.Client) *JobService {
	return &JobService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// Enqueue records a queued job for an already staged upload and schedules it.
func (s *JobService) Enqueue(ctx context.Context, jobID, uploadPath string) (*model.ProcessAsyncResponse, error) {
	job := &model.JobRecord{
		ID:        jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: time.Now(),
	}
	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newPipelineTask(&model.PipelineJobPayload{JobID: jobID, UploadPath: uploadPath})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Each stage is attempted once per job.
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue(QueuePipeline),
		asynq.MaxRetry(0),
		asynq.Retention(jobTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.ProcessAsyncResponse{JobID: jobID, Status: model.JobStatusQueued}, nil
}

// GetStatus returns the current record of an asynchronous job
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.JobRecord, error) {
	return s.getJob(ctx, jobID)
}

// UpdateState records the state a running job just entered (called by worker)
func (s *JobService) UpdateState(ctx context.Context, jobID string, state model.JobState) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.State = state
	job.Progress = state.Progress()
	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// CompleteJob marks job as completed (called by worker)
func (s *JobService) CompleteJob(ctx context.Context, jobID string, result *model.ProcessResponse) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.State = model.StateLedgerRecorded
	job.Progress = 100
	job.Result = result
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// FailJob marks job as failed (called by worker)
func (s *JobService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	job.State = model.StateFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Helper methods

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func (s *JobService) saveJob(ctx context.Context, job *model.JobRecord) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, jobTTL).Err()
}

func (s *JobService) getJob(ctx context.Context, jobID string) (*model.JobRecord, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.JobRecord
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func newPipelineTask(payload *model.PipelineJobPayload) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	taskPayload := map[string]interface{}{
		"jobId":   payload.JobID,
		"payload": json.RawMessage(payloadBytes),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePipeline, data), nil
}
