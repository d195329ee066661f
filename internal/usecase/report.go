package usecase

import (
	"fmt"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dustin/go-humanize"
	"github.com/semmidev/pgvault/internal/domain"
)

const subjectPrefix = "[pgvault]"

func SuccessSubject(db string, date civil.Date) string {
	return fmt.Sprintf("%s SUCCESS %s %s", subjectPrefix, db, date)
}

func FailureSubject(db string, date civil.Date) string {
	return fmt.Sprintf("%s FAILURE %s %s", subjectPrefix, db, date)
}

func (uc *Backup) successBody(db string, date civil.Date, result *domain.RunResult, elapsed time.Duration) string {
	var b strings.Builder
	a := result.Artifact

	fmt.Fprintf(&b, "Backup of %s completed on %s.\n\n", db, date)
	fmt.Fprintf(&b, "Artifact: %s (%s)\n", a.Name, humanize.Bytes(uint64(a.Size)))
	fmt.Fprintf(&b, "Daily copy: %s\n", path.Join(uc.cfg.Remote.DailyPath, a.Name))
	if result.Monthly {
		fmt.Fprintf(&b, "Monthly copy: %s\n", path.Join(uc.cfg.Remote.MonthlyPath, a.Name))
	}

	if len(result.Pruned) == 0 {
		fmt.Fprintf(&b, "Pruned: none (retention %d days)\n", uc.cfg.App.RetentionDays)
	} else {
		fmt.Fprintf(&b, "Pruned %d expired copies (retention %d days):\n", len(result.Pruned), uc.cfg.App.RetentionDays)
		for _, name := range result.Pruned {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
	}

	if len(result.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w.Error())
		}
	}

	fmt.Fprintf(&b, "\nDuration: %s\n", elapsed.Round(time.Second))
	return b.String()
}

func (uc *Backup) failureBody(db string, date civil.Date, result *domain.RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Backup of %s failed on %s.\n\n", db, date)
	fmt.Fprintf(&b, "Status: %s\n", result.Status)
	fmt.Fprintf(&b, "Error: %v\n", result.Err)

	if result.Status == domain.StatusUploadFailed && result.Artifact != nil {
		fmt.Fprintf(&b, "\nThe dump was kept for manual recovery at %s (%s).\n",
			result.Artifact.LocalPath, humanize.Bytes(uint64(result.Artifact.Size)))
	}

	fmt.Fprintf(&b, "\nSee %s for details.\n", uc.cfg.LogFile(date.String()))
	return b.String()
}
