package usecase

import (
	"cloud.google.com/go/civil"
	"github.com/semmidev/pgvault/internal/domain"
)

// SelectExpired returns the names whose embedded date is strictly older than
// today minus retentionDays. Names without a valid date are never selected.
func SelectExpired(names []string, retentionDays int, today civil.Date) map[string]struct{} {
	cutoff := today.AddDays(-retentionDays)

	expired := make(map[string]struct{})
	for _, name := range names {
		date, ok := domain.DateOf(name)
		if !ok {
			continue
		}
		if date.Before(cutoff) {
			expired[name] = struct{}{}
		}
	}

	return expired
}
