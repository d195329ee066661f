package usecase

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/semmidev/pgvault/internal/domain"
	"github.com/semmidev/pgvault/internal/infrastructure/logger"
	"github.com/spf13/afero"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeRestorer struct {
	fs       afero.Fs
	err      error
	restored []string
	content  string
}

func (r *fakeRestorer) Restore(_ context.Context, localPath string) error {
	r.restored = append(r.restored, localPath)
	b, err := afero.ReadFile(r.fs, localPath)
	if err != nil {
		return err
	}
	r.content = string(b)
	return r.err
}

func TestRestoreExecute(t *testing.T) {
	ctx := context.Background()

	Convey("Given dumps in both remote paths", t, func() {
		fs := afero.NewMemMapFs()
		cfg := testConfig()
		store := newMemStore(fs)
		store.put("dbBackups", "app_2024-03-09.pgdump", "daily dump")
		store.put("dbBackups/monthly", "app_2024-03-01.pgdump", "monthly dump")

		restorer := &fakeRestorer{fs: fs}
		uc := NewRestore(store, restorer, logger.Nop(), cfg)
		uc.fs = fs

		Convey("When restoring a daily copy", func() {
			err := uc.Execute(ctx, RestoreRequest{Name: "app_2024-03-09.pgdump"})

			Convey("It downloads into the restore dir and hands the file over", func() {
				So(err, ShouldBeNil)
				So(restorer.restored, ShouldResemble, []string{"/var/lib/pgvault/restore/app_2024-03-09.pgdump"})
				So(restorer.content, ShouldEqual, "daily dump")
			})

			Convey("It removes the download afterwards", func() {
				exists, _ := afero.Exists(fs, "/var/lib/pgvault/restore/app_2024-03-09.pgdump")
				So(exists, ShouldBeFalse)
			})
		})

		Convey("When restoring a monthly copy and keeping the file", func() {
			err := uc.Execute(ctx, RestoreRequest{Name: "app_2024-03-01.pgdump", Monthly: true, Keep: true})

			Convey("It reads the monthly path and leaves the download", func() {
				So(err, ShouldBeNil)
				So(restorer.content, ShouldEqual, "monthly dump")
				exists, _ := afero.Exists(fs, "/var/lib/pgvault/restore/app_2024-03-01.pgdump")
				So(exists, ShouldBeTrue)
			})
		})

		Convey("When the named copy does not exist", func() {
			err := uc.Execute(ctx, RestoreRequest{Name: "app_2024-01-01.pgdump"})

			Convey("The database is left alone", func() {
				So(errors.Is(err, domain.ErrObjectNotFound), ShouldBeTrue)
				So(restorer.restored, ShouldBeEmpty)
			})
		})

		Convey("When the name belongs to another database", func() {
			err := uc.Execute(ctx, RestoreRequest{Name: "billing_2024-03-09.pgdump"})

			Convey("It is rejected before downloading", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "is not a dump of app")
				So(restorer.restored, ShouldBeEmpty)
			})
		})

		Convey("When the download breaks off midway", func() {
			store.downloadErr = errors.New("connection reset by peer")
			err := uc.Execute(ctx, RestoreRequest{Name: "app_2024-03-09.pgdump", Keep: true})

			Convey("The partial file is removed and nothing is restored", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "connection reset by peer")
				So(restorer.restored, ShouldBeEmpty)
				exists, _ := afero.Exists(fs, "/var/lib/pgvault/restore/app_2024-03-09.pgdump")
				So(exists, ShouldBeFalse)
			})
		})

		Convey("When pg_restore fails", func() {
			restorer.err = errors.New("pg_restore: exit status 1")
			err := uc.Execute(ctx, RestoreRequest{Name: "app_2024-03-09.pgdump"})

			Convey("The error is returned", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "restore app_2024-03-09.pgdump")
			})
		})
	})
}

func TestCatalogExecute(t *testing.T) {
	Convey("Given a mixed daily listing", t, func() {
		store := newMemStore(afero.NewMemMapFs())
		store.put("dbBackups", "app_2024-03-05.pgdump", "")
		store.put("dbBackups", "app_2024-03-09.pgdump", "")
		store.put("dbBackups", "app_2024-02-28.pgdump", "")
		store.put("dbBackups", "billing_2024-03-09.pgdump", "")
		store.put("dbBackups", "README", "")
		store.put("dbBackups/monthly", "app_2024-03-01.pgdump", "")

		uc := NewCatalog(store, testConfig())

		Convey("Daily dumps of this database are listed newest first", func() {
			artifacts, err := uc.Execute(context.Background(), false)
			So(err, ShouldBeNil)
			So(artifacts, ShouldResemble, []RemoteArtifact{
				{Name: "app_2024-03-09.pgdump", Date: civil.Date{Year: 2024, Month: 3, Day: 9}},
				{Name: "app_2024-03-05.pgdump", Date: civil.Date{Year: 2024, Month: 3, Day: 5}},
				{Name: "app_2024-02-28.pgdump", Date: civil.Date{Year: 2024, Month: 2, Day: 28}},
			})
		})

		Convey("The monthly path is listed on request", func() {
			artifacts, err := uc.Execute(context.Background(), true)
			So(err, ShouldBeNil)
			So(artifacts, ShouldHaveLength, 1)
			So(artifacts[0].Name, ShouldEqual, "app_2024-03-01.pgdump")
		})

		Convey("A listing error is typed", func() {
			store.listErr = errors.New("timeout")
			_, err := uc.Execute(context.Background(), false)

			var listErr *domain.ListFailure
			So(errors.As(err, &listErr), ShouldBeTrue)
		})
	})
}
