package engine

import (
	goerrors "github.com/go-errors/errors"
)

// recoverPanic recovers from a panic and hands it to onPanic with a stack
// trace attached. It must be called directly from a defer statement.
func recoverPanic(onPanic func(cause *goerrors.Error)) {
	if rec := recover(); rec != nil {
		onPanic(goerrors.Wrap(rec, 2))
	}
}
