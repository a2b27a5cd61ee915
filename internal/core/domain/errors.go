package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrPageNotFound   = errors.New("page not found")
	ErrAnalysis       = errors.New("query analysis failed")
	ErrEmbedding      = errors.New("embedding failed")
	ErrSearchProvider = errors.New("search provider error")
	ErrRerank         = errors.New("rerank failed")
	ErrPersistence    = errors.New("persistence error")
	ErrNoResults      = errors.New("no results")
	ErrTemporary      = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
