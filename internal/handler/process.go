package handler

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/framebeat/api/internal/model"
	"github.com/framebeat/api/internal/service"
	"github.com/framebeat/api/internal/storage"
	"github.com/framebeat/api/pkg/response"
)

// AsyncJobs queues pipeline runs; nil when Redis is not available.
type AsyncJobs interface {
	Enqueue(ctx context.Context, jobID, uploadPath string) (*model.ProcessAsyncResponse, error)
	GetStatus(ctx context.Context, jobID string) (*model.JobRecord, error)
}

type ProcessHandler struct {
	pipeline *service.PipelineService
	store    *storage.Store
	jobs     AsyncJobs
	observer service.ProgressObserver
}

func NewProcessHandler(pipeline *service.PipelineService, store *storage.Store, jobs AsyncJobs, observer service.ProgressObserver) *ProcessHandler {
	return &ProcessHandler{
		pipeline: pipeline,
		store:    store,
		jobs:     jobs,
		observer: observer,
	}
}

// Process handles POST /api/process
// @Summary      Add a soundtrack to a video
// @Description  Samples the uploaded video, recognizes a fitting song, and muxes the selected track in
// @Tags         Process
// @Accept       multipart/form-data
// @Produce      json
// @Param        video formData file true "Source video"
// @Success      200 {object} model.ProcessResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/process [post]
func (h *ProcessHandler) Process(c *fiber.Ctx) error {
	jobID, uploadPath, ok, err := h.stageUpload(c)
	if !ok {
		return err
	}

	job, err := h.pipeline.Process(c.UserContext(), jobID, uploadPath, h.observer)
	if err != nil {
		pe := service.AsPipelineError(err)
		switch {
		case pe.Kind == service.KindSelection:
			return response.SelectionFailed(c, pe.Message())
		case pe.ClientError():
			return response.ValidationError(c, pe.Message(), nil)
		default:
			return response.ProcessingFailed(c, pe.Message())
		}
	}

	return response.OK(c, service.Response(job))
}

// ProcessAsync handles POST /api/process/async
// @Summary      Queue a video for processing
// @Tags         Process
// @Accept       multipart/form-data
// @Produce      json
// @Param        video formData file true "Source video"
// @Success      202 {object} model.ProcessAsyncResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /api/process/async [post]
func (h *ProcessHandler) ProcessAsync(c *fiber.Ctx) error {
	if h.jobs == nil {
		return response.ServiceUnavailable(c, "Background processing is not available")
	}

	jobID, uploadPath, ok, err := h.stageUpload(c)
	if !ok {
		return err
	}

	result, err := h.jobs.Enqueue(c.UserContext(), jobID, uploadPath)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// JobStatus handles GET /api/jobs/:jobId
// @Summary      Get background job status
// @Tags         Process
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobRecord
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/jobs/{jobId} [get]
func (h *ProcessHandler) JobStatus(c *fiber.Ctx) error {
	if h.jobs == nil {
		return response.ServiceUnavailable(c, "Background processing is not available")
	}

	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.jobs.GetStatus(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// stageUpload sweeps expired files, then saves the "video" form file as uploads/<jobId><ext>. When ok
// is false the error response has already been written and err is the
// result of writing it.
func (h *ProcessHandler) stageUpload(c *fiber.Ctx) (jobID, uploadPath string, ok bool, err error) {
	// Expired artifacts go before anything new is written.
	h.store.Sweep(time.Now())

	file, ferr := c.FormFile("video")
	if ferr != nil {
		return "", "", false, response.ValidationError(c, "Missing video file.", nil)
	}

	jobID = service.NewJobID()
	uploadPath = h.store.UploadPath(jobID, filepath.Ext(file.Filename))
	if serr := c.SaveFile(file, uploadPath); serr != nil {
		log.Error().Err(serr).Str("jobId", jobID).Msg("failed to save upload")
		return "", "", false, response.ServiceError(c, "Failed to save upload")
	}

	log.Info().Str("jobId", jobID).Str("file", file.Filename).Int64("size", file.Size).Msg("upload staged")
	return jobID, uploadPath, true, nil
}
