package services

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrGenerationFailed = errors.New("audio generation failed")
)

// Stages reported by AudioError.
const (
	StageLookup   = "lookup"
	StageVerify   = "verify"
	StageHeal     = "heal"
	StageGenerate = "generate"
	StageUpload   = "upload"
	StagePersist  = "persist"
	StagePresign  = "presign"
)

// AudioError carries the pipeline stage and the content that failed.
type AudioError struct {
	Stage    string
	Text     string
	Language string
	Err      error
}

func (e *AudioError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("audio %s failed for %q (%s): %v", e.Stage, shortText(e.Text), e.Language, e.Err)
}

func (e *AudioError) Unwrap() error { return e.Err }

func audioErr(stage string, req EnsureAudioRequest, err error) error {
	return &AudioError{Stage: stage, Text: req.Text, Language: req.Language, Err: err}
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func shortText(s string) string {
	const max = 60
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}
