// Package pkgerr classifies import failures so callers can tell a bad archive
// from a valid archive that is not a package.
package pkgerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnsupportedFormat Kind = "UnsupportedFormat"
	KindExtractionFailure Kind = "ExtractionFailure"
	KindMetadataMissing   Kind = "MetadataMissing"
	KindHashFailure       Kind = "HashFailure"
	KindFilesystemError   Kind = "FilesystemError"
)

var codes = map[Kind]string{
	KindUnsupportedFormat: "IMP_FORMAT",
	KindExtractionFailure: "IMP_EXTRACT",
	KindMetadataMissing:   "IMP_METADATA",
	KindHashFailure:       "IMP_HASH",
	KindFilesystemError:   "IMP_FS",
}

// Code returns the stable machine code for k, used in audit events and JSON output.
func (k Kind) Code() string {
	if c, ok := codes[k]; ok {
		return c
	}
	return "IMP_UNKNOWN"
}

type classifiedError struct {
	kind  Kind
	cause error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return string(e.kind)
	}
	return string(e.kind) + ": " + e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// Wrap classifies cause as kind. A nil cause yields nil. An error that is
// already classified keeps its original kind.
func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	var classified *classifiedError
	if errors.As(cause, &classified) {
		return cause
	}
	return &classifiedError{kind: kind, cause: cause}
}

// New builds a classified error from a format string.
func New(kind Kind, format string, args ...any) error {
	return &classifiedError{kind: kind, cause: fmt.Errorf(format, args...)}
}

func KindOf(err error) Kind {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.kind
	}
	return ""
}

func CodeOf(err error) string {
	kind := KindOf(err)
	if kind == "" {
		return ""
	}
	return kind.Code()
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
