package vectordb

import "errors"

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyEmbedding    = errors.New("embedding is empty")
	ErrCorruptEmbedding  = errors.New("corrupt embedding blob")
)
