package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoImageProvided     = errors.New("no image provided")
	ErrNoImageURL          = errors.New("attachment has no image link")
	ErrImageDownload       = errors.New("image download failed")
	ErrAnalysisUnavailable = errors.New("analysis service unavailable")
	ErrAnalysisRejected    = errors.New("analysis service rejected request")
	ErrDispatchFailed      = errors.New("reply dispatch failed")
	ErrNoCallback          = errors.New("no callback target in event")
	ErrTransferUnsupported = errors.New("image transfer not supported by this deployment")
	ErrNotAnImage          = errors.New("attachment is not an image")
	ErrImageTooLarge       = errors.New("image exceeds size limit")
)

// AnalysisError describes a failed analysis call. Kind is either
// ErrAnalysisUnavailable or ErrAnalysisRejected.
type AnalysisError struct {
	Kind   error
	Status int
	Body   string
	Header http.Header
	Err    error
}

func (e *AnalysisError) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *AnalysisError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
