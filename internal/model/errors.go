package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedRunName marks a directory whose name matches no run identifier pattern.
	ErrMalformedRunName = errors.New("malformed run name")
	// ErrRootUnavailable marks a configured root which can't be listed.
	ErrRootUnavailable = errors.New("root directory unavailable")
	// ErrAllRootsUnavailable is fatal: no configured root could be listed.
	ErrAllRootsUnavailable = errors.New("all root directories unavailable")
	// ErrCorruptState is returned when the state artifact exists but can't be read back.
	ErrCorruptState = errors.New("corrupt state")
	// ErrStatePersistence is fatal: the state could not be saved atomically.
	ErrStatePersistence = errors.New("state persistence failure")
	// ErrOutputPublish is fatal: the output artifact could not be made visible.
	ErrOutputPublish = errors.New("output publish failure")
	// ErrConcurrentInvocation is returned when another invocation holds the state lock.
	ErrConcurrentInvocation = errors.New("concurrent invocation")
)

// UnpublishedRunsError is returned when the state may list runs which were
// never published and restoring the previous state failed too. The runs
// need to be removed from the state by hand to get them reported.
type UnpublishedRunsError struct {
	RunIDs []string
	Err    error
}

func (e *UnpublishedRunsError) Error() string {
	return fmt.Sprintf("runs possibly marked known but not published [%s]: %v", strings.Join(e.RunIDs, ", "), e.Err)
}

func (e *UnpublishedRunsError) Unwrap() error {
	return e.Err
}
