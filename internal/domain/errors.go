package domain

import (
	"errors"
	"fmt"
)

// FailureKind classifies source-level load failures.
type FailureKind string

const (
	KindTransient   FailureKind = "transient"
	KindDecode      FailureKind = "decode"
	KindEncoding    FailureKind = "encoding"
	KindSchema      FailureKind = "schema"
	KindContentType FailureKind = "content_type"
	KindConfig      FailureKind = "config"
)

// Retryable reports whether another attempt may succeed.
func (k FailureKind) Retryable() bool { return k == KindTransient }

// SourceName identifies which upstream a failure belongs to.
type SourceName string

const (
	SourceFeed   SourceName = "feed"
	SourceLookup SourceName = "lookup"
)

// SourceError is a typed failure for one source load.
type SourceError struct {
	Source SourceName
	URL    string
	Kind   FailureKind
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Source, e.Kind, e.URL, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// UserMessage is the operator-facing text; the raw cause goes to the log.
func (e *SourceError) UserMessage() string {
	what := "sales data"
	if e.Source == SourceLookup {
		what = "product names"
	}
	switch e.Kind {
	case KindTransient:
		return fmt.Sprintf("Could not download %s right now. Please try again later.", what)
	case KindDecode:
		return fmt.Sprintf("The %s file is damaged or not in the expected format.", what)
	case KindEncoding:
		return fmt.Sprintf("The %s file contains text in an unsupported encoding.", what)
	case KindSchema:
		return fmt.Sprintf("The %s file is missing required columns. Check the source configuration.", what)
	case KindContentType:
		return fmt.Sprintf("The %s source returned an unsupported file type.", what)
	case KindConfig:
		return fmt.Sprintf("The %s source address is not a valid http(s) URL.", what)
	default:
		return fmt.Sprintf("Loading %s failed.", what)
	}
}

// NewSourceError wraps err with source, url and kind.
func NewSourceError(source SourceName, url string, kind FailureKind, err error) *SourceError {
	return &SourceError{Source: source, URL: url, Kind: kind, Err: err}
}

// KindOf extracts the failure kind, treating unknown errors as transient.
func KindOf(err error) FailureKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// LoadStatus distinguishes an empty source from a failed one.
type LoadStatus string

const (
	StatusOK     LoadStatus = "ok"
	StatusEmpty  LoadStatus = "empty"
	StatusFailed LoadStatus = "failed"
)
