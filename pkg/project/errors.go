package project

import (
	"errors"
	"fmt"
)

// ErrInvalidManifest is the kind of every manifest validation failure
var ErrInvalidManifest = errors.New("invalid project manifest")

// ManifestError locates a manifest failure
type ManifestError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ManifestError) Error() string {
	if e == nil {
		return ""
	}
	msg := ErrInvalidManifest.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Path)
	}
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause
func (e *ManifestError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidManifest}
	}
	return []error{ErrInvalidManifest, e.Err}
}

func invalidf(path, format string, args ...any) error {
	return &ManifestError{Path: path, Msg: fmt.Sprintf(format, args...)}
}
