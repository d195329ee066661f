package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/semmidev/pgvault/internal/config"
	"github.com/wneessen/go-mail"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEmailNotifier(t *testing.T) {
	Convey("Given an email notifier", t, func() {
		cfg := &config.NotifyConfig{
			AdminEmail:    "dba@example.com",
			MailFrom:      "pgvault@example.com",
			MailTransport: "sendmail",
		}
		email := NewEmail(cfg)

		Convey("When building a message", func() {
			msg, err := email.buildMessage("dba@example.com", "[pgvault] SUCCESS app 2024-03-10", "Backup app_2024-03-10.pgdump uploaded")
			So(err, ShouldBeNil)

			var buf bytes.Buffer
			_, err = msg.WriteTo(&buf)
			So(err, ShouldBeNil)
			raw := buf.String()

			Convey("It should carry the headers and a plain-text body", func() {
				So(raw, ShouldContainSubstring, "Subject: [pgvault] SUCCESS app 2024-03-10")
				So(raw, ShouldContainSubstring, "<dba@example.com>")
				So(raw, ShouldContainSubstring, "<pgvault@example.com>")
				So(raw, ShouldContainSubstring, "text/plain")
				So(raw, ShouldContainSubstring, "app_2024-03-10.pgdump")
			})
		})

		Convey("When no sender is configured", func() {
			cfg.MailFrom = ""
			msg, err := email.buildMessage("dba@example.com", "s", "b")
			So(err, ShouldBeNil)

			Convey("It should send from the recipient address", func() {
				So(msg.GetFromString(), ShouldResemble, []string{"<dba@example.com>"})
			})
		})

		Convey("When the recipient is not an address", func() {
			_, err := email.buildMessage("not an address", "s", "b")
			So(err, ShouldNotBeNil)
		})

		Convey("When delivering through sendmail", func() {
			dir := t.TempDir()
			captured := filepath.Join(dir, "captured.eml")
			script := filepath.Join(dir, "sendmail")
			So(os.WriteFile(script, []byte("#!/bin/sh\ncat > "+captured+"\n"), 0755), ShouldBeNil)
			cfg.SendmailPath = script

			err := email.Send(context.Background(), "dba@example.com", "[pgvault] FAILURE app 2024-03-10", "dump failed")

			Convey("It should pipe the message to the binary", func() {
				So(err, ShouldBeNil)
				content, err := os.ReadFile(captured)
				So(err, ShouldBeNil)
				So(string(content), ShouldContainSubstring, "Subject: [pgvault] FAILURE app 2024-03-10")
				So(string(content), ShouldContainSubstring, "dump failed")
			})
		})

		Convey("When the sendmail binary is missing", func() {
			cfg.SendmailPath = filepath.Join(t.TempDir(), "nope")
			err := email.Send(context.Background(), "dba@example.com", "s", "b")
			So(err, ShouldNotBeNil)
		})
	})

	Convey("TLS policies map from their config names", t, func() {
		So(tlsPolicy("mandatory"), ShouldEqual, mail.TLSMandatory)
		So(tlsPolicy("none"), ShouldEqual, mail.NoTLS)
		So(tlsPolicy(""), ShouldEqual, mail.TLSOpportunistic)
	})
}

// fakeBotAPI answers getMe and sendMessage like the Telegram bot API.
type fakeBotAPI struct {
	mu    sync.Mutex
	texts []string
	// getMe answers 502 this many times before succeeding
	failGetMe int
	// sendMessage waits this long unless the client gives up first
	delay time.Duration
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		f.mu.Lock()
		fail := f.failGetMe > 0
		if fail {
			f.failGetMe--
		}
		f.mu.Unlock()
		if fail {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"pgvault","username":"pgvault_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		_ = r.ParseForm()
		f.mu.Lock()
		f.texts = append(f.texts, r.Form.Get("text"))
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeBotAPI) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func newTestTelegram(api *fakeBotAPI) (*TelegramNotifier, func()) {
	srv := httptest.NewServer(api)
	tg := NewTelegram("123:abc", 42)
	tg.endpoint = srv.URL + "/bot%s/%s"
	return tg, srv.Close
}

func TestTelegramNotifier(t *testing.T) {
	Convey("Given a telegram notifier against a fake bot API", t, func() {
		api := &fakeBotAPI{}
		tg, closeAPI := newTestTelegram(api)
		defer closeAPI()

		err := tg.Send(context.Background(), "ignored@example.com", "[pgvault] SUCCESS app 2024-03-10", "all good")

		Convey("It should post subject and body as one message", func() {
			So(err, ShouldBeNil)
			So(api.sent(), ShouldResemble, []string{"[pgvault] SUCCESS app 2024-03-10\n\nall good"})
		})
	})

	Convey("Given a bot API that is briefly unavailable", t, func() {
		api := &fakeBotAPI{failGetMe: 1}
		tg, closeAPI := newTestTelegram(api)
		defer closeAPI()

		first := tg.Send(context.Background(), "", "[pgvault] SUCCESS app 2024-03-10", "first")
		second := tg.Send(context.Background(), "", "[pgvault] SUCCESS app 2024-03-11", "second")

		Convey("The failed bot creation is not remembered", func() {
			So(first, ShouldNotBeNil)
			So(first.Error(), ShouldContainSubstring, "failed to create telegram bot")
			So(second, ShouldBeNil)
			So(api.sent(), ShouldResemble, []string{"[pgvault] SUCCESS app 2024-03-11\n\nsecond"})
		})
	})

	Convey("Given a bot API that hangs on sendMessage", t, func() {
		api := &fakeBotAPI{delay: 5 * time.Second}
		tg, closeAPI := newTestTelegram(api)
		defer closeAPI()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := tg.Send(ctx, "", "s", "b")

		Convey("Send gives up when its context expires", func() {
			So(err, ShouldNotBeNil)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, 2*time.Second)
			So(api.sent(), ShouldBeEmpty)
		})
	})

	Convey("A cancelled context is not sent", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		tg := NewTelegram("123:abc", 42)
		So(tg.Send(ctx, "", "s", "b"), ShouldEqual, context.Canceled)
	})
}

type recordingNotifier struct {
	err   error
	calls int
}

func (r *recordingNotifier) Send(context.Context, string, string, string) error {
	r.calls++
	return r.err
}

func TestMulti(t *testing.T) {
	Convey("Given several channels", t, func() {
		broken := &recordingNotifier{err: errors.New("smtp down")}
		healthy := &recordingNotifier{}
		m := Multi{broken, healthy}

		err := m.Send(context.Background(), "dba@example.com", "s", "b")

		Convey("A failing channel should not stop the others", func() {
			So(broken.calls, ShouldEqual, 1)
			So(healthy.calls, ShouldEqual, 1)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "smtp down")
		})
	})

	Convey("New only adds telegram when it is configured", t, func() {
		So(New(&config.NotifyConfig{}), ShouldHaveLength, 1)
		So(New(&config.NotifyConfig{TelegramBotToken: "t", TelegramChatID: 1}), ShouldHaveLength, 2)
	})
}
