package logger

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given the Logger package", t, func() {
		Convey("New function", func() {
			Convey("When creating a logger with console output only", func() {
				logger, err := New("info", "")

				Convey("It should create a logger successfully", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)
					So(func() { logger.Info("Test log") }, ShouldNotPanic)
				})
			})

			Convey("When creating a logger with a daily log file", func() {
				tempDir := t.TempDir()
				logFile := filepath.Join(tempDir, "logs", "backup_2024-03-10.log")

				logger, err := New("info", logFile)
				So(err, ShouldBeNil)
				So(logger, ShouldNotBeNil)

				logger.Infof("dump created: %s", "app_2024-03-10.pgdump")
				logger.Errorf("upload failed: %s", "boom")
				logger.Close()

				Convey("It should append leveled lines to the file", func() {
					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(content), ShouldContainSubstring, "INFO")
					So(string(content), ShouldContainSubstring, "dump created: app_2024-03-10.pgdump")
					So(string(content), ShouldContainSubstring, "ERROR")
				})

				Convey("A second logger on the same file should append", func() {
					second, err := New("info", logFile)
					So(err, ShouldBeNil)
					second.Infof("second run")
					second.Close()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(content), ShouldContainSubstring, "dump created")
					So(string(content), ShouldContainSubstring, "second run")
				})
			})

			Convey("When creating a logger with an invalid log level", func() {
				logger, err := New("invalid", "")

				Convey("It should default to Info level and create a logger", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)
					So(func() { logger.Debug("Test debug log") }, ShouldNotPanic)
				})
			})

			Convey("When the log directory cannot be created", func() {
				blocker := filepath.Join(t.TempDir(), "file")
				So(os.WriteFile(blocker, []byte("x"), 0644), ShouldBeNil)

				logger, err := New("info", filepath.Join(blocker, "logs", "test.log"))

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create log directory")
					So(logger, ShouldBeNil)
				})
			})
		})

		Convey("Nop logger", func() {
			So(func() { Nop().Errorf("ignored %d", 1) }, ShouldNotPanic)
		})
	})
}
