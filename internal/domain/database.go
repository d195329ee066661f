package domain

import (
	"context"

	"cloud.google.com/go/civil"
)

// DumpProducer materializes a point-in-time logical backup into a local file.
type DumpProducer interface {
	Produce(ctx context.Context, today civil.Date) (*Artifact, error)
	GetName() string
}

// Restorer replaces the live database with the contents of a dump file.
type Restorer interface {
	Restore(ctx context.Context, localPath string) error
}
