package directory

import (
	"context"
	"errors"
	"time"
)

// Retry runs op until it succeeds or fails permanently (ErrNotFound), waiting
// between transient failures. The context is checked each iteration so logout
// or shutdown terminates the loop instead of an implicit global flag.
func Retry(ctx context.Context, op func() error) error {
	delay := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if delay < 16*time.Second {
			delay *= 2
		}
	}
}
