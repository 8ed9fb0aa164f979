package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framebeat/api/internal/model"
	"github.com/framebeat/api/internal/service"
)

type fakeProcessor struct {
	states []model.JobState
	err    error
}

func (f *fakeProcessor) Process(ctx context.Context, jobID, uploadPath string, observer service.ProgressObserver) (*model.Job, error) {
	job := &model.Job{ID: jobID, UploadPath: uploadPath, OutputPath: "/data/outputs/" + jobID + ".mp4", SheetPath: "/data/frames/" + jobID + "-contact.png"}
	for _, st := range f.states {
		job.State = st
		observer.OnTransition(job)
	}
	if f.err != nil {
		job.State = model.StateFailed
		observer.OnTransition(job)
		return job, f.err
	}
	job.ProcessedCount = 7
	return job, nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	states    []model.JobState
	completed *model.ProcessResponse
	failed    string
}

func (r *fakeRecorder) UpdateState(ctx context.Context, jobID string, state model.JobState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return nil
}

func (r *fakeRecorder) CompleteJob(ctx context.Context, jobID string, result *model.ProcessResponse) error {
	r.completed = result
	return nil
}

func (r *fakeRecorder) FailJob(ctx context.Context, jobID string, errMsg string) error {
	r.failed = errMsg
	return nil
}

type fakeHub struct {
	progress  []model.JobState
	completed string
	errCode   string
}

func (h *fakeHub) OnTransition(job *model.Job) { h.progress = append(h.progress, job.State) }
func (h *fakeHub) BroadcastComplete(jobID string, result *model.ProcessResponse) {
	h.completed = jobID
}
func (h *fakeHub) BroadcastError(jobID string, code, message string) { h.errCode = code }

func newTask(t *testing.T, jobID, upload string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(model.PipelineJobPayload{JobID: jobID, UploadPath: upload})
	require.NoError(t, err)
	data, err := json.Marshal(map[string]interface{}{"jobId": jobID, "payload": json.RawMessage(payload)})
	require.NoError(t, err)
	return asynq.NewTask(service.TaskTypePipeline, data)
}

func TestPipelineWorker_Success(t *testing.T) {
	proc := &fakeProcessor{states: model.PipelineStates}
	rec := &fakeRecorder{}
	hub := &fakeHub{}
	w := NewPipelineWorker(proc, rec, hub)

	require.NoError(t, w.ProcessTask(context.Background(), newTask(t, "job-1", "/data/uploads/job-1.mp4")))

	running := model.PipelineStates[:len(model.PipelineStates)-1]
	assert.Equal(t, running, rec.states)
	assert.Equal(t, running, hub.progress)
	require.NotNil(t, rec.completed)
	assert.Equal(t, 7, rec.completed.ProcessedCount)
	assert.Equal(t, "/outputs/job-1.mp4", rec.completed.DownloadURL)
	assert.Equal(t, "job-1", hub.completed)
}

func TestPipelineWorker_FailureIsRecordedNotRetried(t *testing.T) {
	pe := &service.PipelineError{Kind: service.KindSelection, Err: errors.New("selected track not found")}
	proc := &fakeProcessor{states: model.PipelineStates[:5], err: pe}
	rec := &fakeRecorder{}
	hub := &fakeHub{}
	w := NewPipelineWorker(proc, rec, hub)

	assert.NoError(t, w.ProcessTask(context.Background(), newTask(t, "job-2", "/x.mp4")))
	assert.Equal(t, "selected track not found", rec.failed)
	assert.Equal(t, "SELECTION_FAILED", hub.errCode)
	assert.Nil(t, rec.completed)
	assert.NotContains(t, rec.states, model.StateFailed)
}

func TestPipelineWorker_BadPayloadSkipsRetry(t *testing.T) {
	w := NewPipelineWorker(&fakeProcessor{}, &fakeRecorder{}, &fakeHub{})
	err := w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypePipeline, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
