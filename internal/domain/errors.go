package domain

import (
	"errors"
	"fmt"
)

// ErrObjectNotFound is returned by storages when a named object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// DumpFailure indicates that the dump tool did not produce an artifact.
type DumpFailure struct {
	Cause error
}

func (e *DumpFailure) Error() string {
	return fmt.Sprintf("dump failed: %v", e.Cause)
}

func (e *DumpFailure) Unwrap() error {
	return e.Cause
}

// UploadFailure indicates that an artifact could not be copied to a remote path.
type UploadFailure struct {
	Dir   string
	Cause error
}

func (e *UploadFailure) Error() string {
	return fmt.Sprintf("upload to %q failed: %v", e.Dir, e.Cause)
}

func (e *UploadFailure) Unwrap() error {
	return e.Cause
}

// ListFailure indicates that a remote path could not be listed.
type ListFailure struct {
	Dir   string
	Cause error
}

func (e *ListFailure) Error() string {
	return fmt.Sprintf("listing %q failed: %v", e.Dir, e.Cause)
}

func (e *ListFailure) Unwrap() error {
	return e.Cause
}

// DeleteFailure indicates that a remote object could not be removed.
type DeleteFailure struct {
	Name  string
	Cause error
}

func (e *DeleteFailure) Error() string {
	return fmt.Sprintf("deleting %q failed: %v", e.Name, e.Cause)
}

func (e *DeleteFailure) Unwrap() error {
	return e.Cause
}

// NotifyFailure indicates that a notification could not be delivered.
type NotifyFailure struct {
	Cause error
}

func (e *NotifyFailure) Error() string {
	return fmt.Sprintf("notification failed: %v", e.Cause)
}

func (e *NotifyFailure) Unwrap() error {
	return e.Cause
}

// CleanupFailure indicates that the local artifact could not be removed.
type CleanupFailure struct {
	Path  string
	Cause error
}

func (e *CleanupFailure) Error() string {
	return fmt.Sprintf("removing %q failed: %v", e.Path, e.Cause)
}

func (e *CleanupFailure) Unwrap() error {
	return e.Cause
}
