package ai

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when the provider answers without any text content.
var ErrEmptyCompletion = errors.New("ai provider returned an empty response")

// Completer turns a prompt into raw model text. Implementations never interpret the text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}
