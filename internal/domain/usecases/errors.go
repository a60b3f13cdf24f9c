package usecases

import "errors"

var (
	// ErrEmbeddingFailure means the query could not be embedded.
	ErrEmbeddingFailure = errors.New("failed to embed query")

	// ErrNoAnswerFound is the empty-result outcome. It is not a failure.
	ErrNoAnswerFound = errors.New("no relevant answer found")
)

// Messages returned by SearchEngine.Search.
const (
	MsgEmbeddingFailure = "Failed to create query embedding"
	MsgNoAnswerFound    = "No relevant answer found"
	MsgSearchFailed     = "Search failed"
)
