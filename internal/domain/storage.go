package domain

import (
	"context"
)

// Storage is a remote object store addressed by directory-like path prefixes.
//
// List returns bare names of the direct children of dir, in no particular order.
// Delete returns an error wrapping ErrObjectNotFound when the object is absent.
type Storage interface {
	Upload(ctx context.Context, localPath string, dir string) error
	List(ctx context.Context, dir string) ([]string, error)
	Delete(ctx context.Context, dir string, name string) error
	Download(ctx context.Context, dir string, name string, localPath string) error
}

// Notifier delivers a plain-text message.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}
