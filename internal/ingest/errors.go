package ingest

import (
	"errors"
	"fmt"
)

// Stage names a step of the per-item state machine.
type Stage string

const (
	StageList      Stage = "list"
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageSummarize Stage = "summarize"
	StageImage     Stage = "image"
	StageDeliver   Stage = "deliver"
	StageCommit    Stage = "commit"
)

// Error kinds. Match with errors.Is against a *StageError.
var (
	ErrSourceUnreachable   = errors.New("source unreachable")
	ErrExtraction          = errors.New("extraction failed")
	ErrInsufficientContent = errors.New("insufficient content")
	ErrSummarizer          = errors.New("summarizer failed")
	ErrImage               = errors.New("image generation failed")
	ErrDelivery            = errors.New("delivery failed")
	ErrCommit              = errors.New("commit failed")
)

// StageError records where and why an item or source failed.
type StageError struct {
	Stage    Stage
	Kind     error
	Location string
	Err      error
}

func stageErr(stage Stage, kind error, location string, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Location: location, Err: err}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Location, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Stage, e.Location, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
