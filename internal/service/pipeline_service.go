package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/framebeat/api/internal/client"
	"github.com/framebeat/api/internal/media"
	"github.com/framebeat/api/internal/metrics"
	"github.com/framebeat/api/internal/model"
	"github.com/framebeat/api/internal/storage"
)

type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

type FrameSampler interface {
	Sample(ctx context.Context, videoPath string, duration float64, outPaths []string) ([]string, error)
}

type SheetComposer interface {
	Compose(frames []string, outPath string) (string, error)
}

type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) model.Identity
}

type TrackSelector interface {
	Select(ctx context.Context, songArtist string) (string, error)
}

type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath string, start float64, outPath string) (string, error)
}

// UsageCounter is the processed-video ledger.
type UsageCounter interface {
	RecordCompletion() (int, error)
	Read() (int, error)
}

// ArtifactPublisher copies finished artifacts to object storage.
type ArtifactPublisher interface {
	UploadFile(ctx context.Context, prefix, path, contentType string) (string, error)
	IsConfigured() bool
}

// ProgressObserver is told about every state a job enters, FAILED included.
type ProgressObserver interface {
	OnTransition(job *model.Job)
}

// PipelineDeps wires the stages of the pipeline.
type PipelineDeps struct {
	Prober    DurationProber
	Sampler   FrameSampler
	Composer  SheetComposer
	Recognize Recognizer
	Selector  TrackSelector
	Muxer     Muxer
	Counter   UsageCounter
	Publisher ArtifactPublisher // optional
}

// PipelineService runs one upload through every stage, in order, once.
type PipelineService struct {
	store *storage.Store
	deps  PipelineDeps
	now   func() time.Time
}

func NewPipelineService(store *storage.Store, deps PipelineDeps) *PipelineService {
	return &PipelineService{store: store, deps: deps, now: time.Now}
}

// NewJobID returns a fresh job identifier.
func NewJobID() string {
	return uuid.New().String()
}

// Process runs the job identified by jobID over the staged upload. The
// returned job is always non-nil; on failure it is in FAILED and the error is
// a *PipelineError.
func (s *PipelineService) Process(ctx context.Context, jobID, uploadPath string, observer ProgressObserver) (*model.Job, error) {
	s.store.Sweep(s.now())

	job := &model.Job{
		ID:         jobID,
		UploadPath: uploadPath,
		FramePaths: s.store.FramePaths(jobID, media.SheetFrames),
		SheetPath:  s.store.SheetPath(jobID),
		OutputPath: s.store.OutputPath(jobID),
	}
	run := &jobRun{svc: s, job: job, observer: observer, last: s.now()}
	logger := log.With().Str("jobId", jobID).Logger()

	if _, err := os.Stat(uploadPath); err != nil {
		return run.fail(newPipelineError(KindPrecondition, "", fmt.Errorf("%w: %v", ErrMissingUpload, err), "Missing video file."))
	}
	run.enter(model.StateStaged)

	duration, err := s.deps.Prober.Duration(ctx, uploadPath)
	if err != nil {
		if errors.Is(err, media.ErrInvalidDuration) {
			return run.fail(newPipelineError(KindPrecondition, job.State, err, "Could not read video duration."))
		}
		return run.fail(newPipelineError(KindExternalTool, job.State, err, ""))
	}
	job.Duration = duration
	run.enter(model.StateDurationRead)

	if _, err := s.deps.Sampler.Sample(ctx, uploadPath, duration, job.FramePaths); err != nil {
		return run.fail(newPipelineError(KindExternalTool, job.State, err, ""))
	}
	run.enter(model.StateFramesSampled)

	if _, err := s.deps.Composer.Compose(job.FramePaths, job.SheetPath); err != nil {
		return run.fail(newPipelineError(KindExternalTool, job.State, err, ""))
	}
	run.enter(model.StateSheetComposed)

	job.Identity = s.deps.Recognize.Recognize(ctx, job.SheetPath)
	if job.Identity.IsUnknown() {
		logger.Warn().Msg("song not recognized, selecting for the unknown identity")
	} else {
		logger.Info().Str("songArtist", job.Identity.SongArtist).Int("startSeconds", job.Identity.StartSeconds).Msg("identity recognized")
	}
	run.enter(model.StateIdentityRecognized)

	track, err := s.deps.Selector.Select(ctx, job.Identity.SongArtist)
	if err != nil {
		return run.fail(classifySelection(job.State, err))
	}
	audioPath := s.store.AssetPath(track)
	if info, err := os.Stat(audioPath); err != nil || info.IsDir() {
		return run.fail(newPipelineError(KindSelection, job.State, fmt.Errorf("%w: %s", ErrTrackNotFound, track),
			fmt.Sprintf("Selected track not found: assets/%s", track)))
	}
	job.SelectedTrack = track
	run.enter(model.StateTrackSelected)

	if _, err := s.deps.Muxer.Mux(ctx, uploadPath, audioPath, float64(job.Identity.StartSeconds), job.OutputPath); err != nil {
		return run.fail(newPipelineError(KindExternalTool, job.State, err, ""))
	}
	run.enter(model.StateMuxed)

	count, err := s.deps.Counter.RecordCompletion()
	if err != nil {
		return run.fail(newPipelineError(KindInternal, job.State, err, "Failed to record usage."))
	}
	job.ProcessedCount = count
	run.enter(model.StateLedgerRecorded)
	s.publish(ctx, job)

	metrics.JobsTotal.WithLabelValues("succeeded").Inc()
	logger.Info().Int("processedCount", count).Str("track", track).Msg("job completed")
	return job, nil
}

// publish uploads the output and sheet when object storage is configured.
// Failures are logged and never fail the job.
func (s *PipelineService) publish(ctx context.Context, job *model.Job) {
	if s.deps.Publisher == nil || !s.deps.Publisher.IsConfigured() {
		return
	}
	url, err := s.deps.Publisher.UploadFile(ctx, "outputs/"+job.ID, job.OutputPath, "video/mp4")
	if err != nil {
		log.Warn().Err(err).Str("jobId", job.ID).Msg("artifact publish failed")
		return
	}
	job.PublicURL = url
	if _, err := s.deps.Publisher.UploadFile(ctx, "frames/"+job.ID, job.SheetPath, "image/png"); err != nil {
		log.Warn().Err(err).Str("jobId", job.ID).Msg("contact sheet publish failed")
	}
}

// ProcessedCount returns the current ledger count.
func (s *PipelineService) ProcessedCount() (int, error) {
	return s.deps.Counter.Read()
}

// Response builds the client payload for a completed job.
func Response(job *model.Job) *model.ProcessResponse {
	return &model.ProcessResponse{
		JobID:           job.ID,
		ProcessedCount:  job.ProcessedCount,
		SongArtist:      job.Identity.SongArtist,
		StartSeconds:    job.Identity.StartSeconds,
		SelectedTrack:   job.SelectedTrack,
		DownloadURL:     path.Join("/outputs", filepath.Base(job.OutputPath)),
		ContactSheetURL: path.Join("/frames", filepath.Base(job.SheetPath)),
		PublicURL:       job.PublicURL,
	}
}

func classifySelection(stage model.JobState, err error) *PipelineError {
	var exitErr *client.SelectorExitError
	switch {
	case errors.As(err, &exitErr):
		return newPipelineError(KindExternalTool, stage, err, "")
	case errors.Is(err, client.ErrEmptySelection):
		return newPipelineError(KindSelection, stage, err, "Track selector did not return a track filename.")
	case errors.Is(err, client.ErrInvalidSelection):
		return newPipelineError(KindSelection, stage, err, "Track selector returned an invalid filename.")
	default:
		return newPipelineError(KindExternalTool, stage, err, "")
	}
}

// jobRun tracks transitions of a single job.
type jobRun struct {
	svc      *PipelineService
	job      *model.Job
	observer ProgressObserver
	last     time.Time
}

func (r *jobRun) enter(state model.JobState) {
	now := r.svc.now()
	r.job.State = state
	r.job.History = append(r.job.History, model.Transition{State: state, At: now})
	metrics.StageDuration.WithLabelValues(string(state)).Observe(now.Sub(r.last).Seconds())
	r.last = now

	log.Debug().Str("jobId", r.job.ID).Str("state", string(state)).Msg("job transition")
	if r.observer != nil {
		r.observer.OnTransition(r.job)
	}
}

func (r *jobRun) fail(pe *PipelineError) (*model.Job, error) {
	r.job.Error = pe.Message()
	metrics.JobsTotal.WithLabelValues("failed").Inc()
	log.Error().Err(pe.Err).Str("jobId", r.job.ID).Str("kind", string(pe.Kind)).Str("stage", string(pe.Stage)).Msg("job failed")
	r.enter(model.StateFailed)
	return r.job, pe
}
