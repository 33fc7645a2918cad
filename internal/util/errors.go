package util

import "errors"

var (
	ErrNoExtractableText = errors.New("no extractable text found in document")
	ErrParseFailure      = errors.New("document parse failure")
	ErrEmbeddingFailure  = errors.New("embedding provider failure")
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrCheckpointCorrupt = errors.New("checkpoint unreadable")
	ErrDanglingCitation  = errors.New("citation references a deleted chunk")
	ErrNotFound          = errors.New("not found")
)
