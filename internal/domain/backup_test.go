package domain

import (
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/civil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestArtifactNaming(t *testing.T) {
	Convey("Artifact names are stable per database and day", t, func() {
		d := civil.Date{Year: 2024, Month: 3, Day: 1}
		So(ArtifactName("app", d), ShouldEqual, "app_2024-03-01.pgdump")
		So(ArtifactName("app", d), ShouldEqual, ArtifactName("app", d))
	})

	Convey("IsArtifactOf only matches dumps of the exact database", t, func() {
		So(IsArtifactOf("app", "app_2024-03-01.pgdump"), ShouldBeTrue)
		So(IsArtifactOf("app", "app_old_2024-03-01.pgdump"), ShouldBeFalse)
		So(IsArtifactOf("app", "other_2024-03-01.pgdump"), ShouldBeFalse)
		So(IsArtifactOf("app", "app_2024-03-01.tar"), ShouldBeFalse)
		So(IsArtifactOf("app", "app_2024-02-30.pgdump"), ShouldBeFalse)
		So(IsArtifactOf("app", "monthly"), ShouldBeFalse)
	})

	Convey("DateOf takes the first date token", t, func() {
		d, ok := DateOf("db_2024-03-05_copy_2023-01-01.ext")
		So(ok, ShouldBeTrue)
		So(d, ShouldResemble, civil.Date{Year: 2024, Month: 3, Day: 5})

		_, ok = DateOf("nodateext")
		So(ok, ShouldBeFalse)

		_, ok = DateOf("db_2024-13-45.ext")
		So(ok, ShouldBeFalse)
	})
}

func TestRunResult(t *testing.T) {
	Convey("Given run results", t, func() {
		Convey("Success exits zero even with warnings", func() {
			r := RunResult{Status: StatusSuccess}
			r.Warn(StepUploadMonthly, &UploadFailure{Dir: "dbBackups/monthly", Cause: errors.New("quota")})

			So(r.Failed(), ShouldBeFalse)
			So(r.ExitCode(), ShouldEqual, 0)
			So(r.Warnings, ShouldHaveLength, 1)
			So(r.Warnings[0].Error(), ShouldEqual, `upload_monthly: upload to "dbBackups/monthly" failed: quota`)
		})

		Convey("Fatal statuses exit one", func() {
			for _, s := range []Status{StatusDumpFailed, StatusUploadFailed, StatusConfigFailed} {
				So(RunResult{Status: s}.ExitCode(), ShouldEqual, 1)
			}
		})
	})

	Convey("Typed failures unwrap to their cause", t, func() {
		err := fmt.Errorf("run: %w", &DeleteFailure{Name: "app_2024-03-01.pgdump", Cause: ErrObjectNotFound})

		var del *DeleteFailure
		So(errors.As(err, &del), ShouldBeTrue)
		So(del.Name, ShouldEqual, "app_2024-03-01.pgdump")
		So(errors.Is(err, ErrObjectNotFound), ShouldBeTrue)
	})
}
