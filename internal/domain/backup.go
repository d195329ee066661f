package domain

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
)

// ArtifactExt is the extension of every dump produced, uploaded and pruned.
const ArtifactExt = ".pgdump"

var dateToken = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Artifact is a dated dump file. Its name embeds the creation date and is its identity.
type Artifact struct {
	Name      string
	Date      civil.Date
	LocalPath string
	Size      int64
}

// ArtifactName returns the stable name of the dump for a database on a given day.
func ArtifactName(database string, date civil.Date) string {
	return fmt.Sprintf("%s_%s%s", database, date.String(), ArtifactExt)
}

// IsArtifactOf reports whether name is exactly {database}_{YYYY-MM-DD}.pgdump.
// Dumps of a database whose name merely starts with database_ do not match.
func IsArtifactOf(database, name string) bool {
	rest, ok := strings.CutPrefix(name, database+"_")
	if !ok {
		return false
	}
	date, ok := strings.CutSuffix(rest, ArtifactExt)
	if !ok {
		return false
	}
	_, err := civil.ParseDate(date)
	return err == nil
}

// DateOf extracts the first YYYY-MM-DD token from name.
func DateOf(name string) (civil.Date, bool) {
	token := dateToken.FindString(name)
	if token == "" {
		return civil.Date{}, false
	}

	d, err := civil.ParseDate(token)
	if err != nil {
		return civil.Date{}, false
	}

	return d, true
}

// BackupExecutor runs one backup lifecycle.
type BackupExecutor interface {
	Execute(ctx context.Context) RunResult
}
