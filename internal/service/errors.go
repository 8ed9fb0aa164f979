package service

import (
	"errors"
	"fmt"

	"github.com/framebeat/api/internal/model"
)

// ErrorKind classifies why a job failed.
type ErrorKind string

const (
	// KindPrecondition: the input cannot be processed (missing upload, unreadable duration).
	KindPrecondition ErrorKind = "precondition"
	// KindExternalTool: ffmpeg, ffprobe or the selector process failed.
	KindExternalTool ErrorKind = "external_tool"
	// KindSelection: the selector answered with something that is not a usable track.
	KindSelection ErrorKind = "selection"
	// KindInternal: local I/O such as the usage ledger.
	KindInternal ErrorKind = "internal"
)

var (
	ErrMissingUpload = errors.New("missing video file")
	ErrJobNotFound   = errors.New("job not found")
	ErrTrackNotFound = errors.New("selected track not found")
)

// PipelineError is the single failure value a job terminates with.
type PipelineError struct {
	Kind  ErrorKind
	Stage model.JobState // last state reached before failing
	Err   error
	msg   string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failure after %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Message is the human-readable text reported to the client.
func (e *PipelineError) Message() string {
	if e.msg != "" {
		return e.msg
	}
	return e.Err.Error()
}

// ClientError reports whether the caller can fix the failure by changing the
// request or the track library.
func (e *PipelineError) ClientError() bool {
	return e.Kind == KindSelection || errors.Is(e.Err, ErrMissingUpload)
}

func newPipelineError(kind ErrorKind, stage model.JobState, err error, msg string) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Err: err, msg: msg}
}

// AsPipelineError unwraps err into a *PipelineError, wrapping unknown errors
// as internal failures.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return &PipelineError{Kind: KindInternal, Err: err}
}
