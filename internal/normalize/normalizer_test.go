package normalize

import (
	"strconv"
	"testing"
	"time"

	"github.com/Bew090/projectlocker/internal/notification"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func newTestNormalizer(opts Options) *Normalizer {
	return New(opts, logx.Nop()).WithClock(func() time.Time { return fixedNow })
}

func TestNormalizeLockerReadyScenario(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(Options{})

	in := n.NormalizeRaw([]byte(`{"notification":{"title":"Locker Ready"},"data":{"targetUrl":"/pickup"}}`))

	if in.Title != "Locker Ready" {
		t.Fatalf("Title = %q", in.Title)
	}
	if in.Body != "You have a new notification" {
		t.Fatalf("Body = %q, want default", in.Body)
	}
	if in.Tag != DefaultTag {
		t.Fatalf("Tag = %q, want %q", in.Tag, DefaultTag)
	}
	if in.Data[notification.DataTargetURL] != "/pickup" {
		t.Fatalf("targetUrl = %q", in.Data[notification.DataTargetURL])
	}
	if want := strconv.FormatInt(fixedNow.UnixMilli(), 10); in.Data[notification.DataTimestamp] != want {
		t.Fatalf("timestamp = %q, want %q", in.Data[notification.DataTimestamp], want)
	}
	if !in.ReceivedAt.Equal(fixedNow) {
		t.Fatalf("ReceivedAt = %v", in.ReceivedAt)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty object", raw: `{}`},
		{name: "blank fields", raw: `{"notification":{"title":"  ","body":""}}`},
		{name: "malformed json", raw: `{"notification":`},
		{name: "wrong shape", raw: `{"notification":"hello"}`},
		{name: "array", raw: `[1,2,3]`},
	}
	n := newTestNormalizer(Options{})
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			in := n.NormalizeRaw([]byte(tt.raw))
			if in.Title == "" || in.Body == "" || in.Tag == "" {
				t.Fatalf("intent has empty defaults: %+v", in)
			}
			if in.Title != "New notification" {
				t.Fatalf("Title = %q", in.Title)
			}
			if in.TargetURL() != "/" {
				t.Fatalf("targetUrl = %q", in.TargetURL())
			}
			if in.Data[notification.DataTimestamp] == "" {
				t.Fatal("timestamp missing")
			}
		})
	}
}

func TestNormalizeDataMerge(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(Options{})

	t.Run("vendor keys kept", func(t *testing.T) {
		in := n.NormalizeRaw([]byte(`{"data":{"lockerId":"A12","slot":7,"meta":{"k":"v"}}}`))
		if in.Data["lockerId"] != "A12" || in.Data["slot"] != "7" || in.Data["meta"] != `{"k":"v"}` {
			t.Fatalf("data = %v", in.Data)
		}
		if in.TargetURL() != "/" {
			t.Fatalf("targetUrl = %q", in.TargetURL())
		}
	})

	t.Run("explicit timestamp wins", func(t *testing.T) {
		in := n.NormalizeRaw([]byte(`{"data":{"timestamp":"42"}}`))
		if in.Data[notification.DataTimestamp] != "42" {
			t.Fatalf("timestamp = %q", in.Data[notification.DataTimestamp])
		}
	})

	t.Run("url alias", func(t *testing.T) {
		in := n.NormalizeRaw([]byte(`{"data":{"url":"/lockers/3"}}`))
		if in.TargetURL() != "/lockers/3" {
			t.Fatalf("targetUrl = %q", in.TargetURL())
		}
	})

	t.Run("targetUrl beats alias", func(t *testing.T) {
		in := n.NormalizeRaw([]byte(`{"data":{"url":"/a","targetUrl":"/b"}}`))
		if in.TargetURL() != "/b" {
			t.Fatalf("targetUrl = %q", in.TargetURL())
		}
	})

	t.Run("blank timestamp falls back", func(t *testing.T) {
		want := strconv.FormatInt(fixedNow.UnixMilli(), 10)
		for _, raw := range []string{`{"data":{"timestamp":""}}`, `{"data":{"timestamp":"  "}}`, `{"data":{"timestamp":null}}`} {
			in := n.NormalizeRaw([]byte(raw))
			if in.Data[notification.DataTimestamp] != want {
				t.Fatalf("%s: timestamp = %q, want %q", raw, in.Data[notification.DataTimestamp], want)
			}
		}
	})

	t.Run("blank targetUrl falls back", func(t *testing.T) {
		in := n.NormalizeRaw([]byte(`{"data":{"targetUrl":""}}`))
		if in.TargetURL() != "/" {
			t.Fatalf("targetUrl = %q", in.TargetURL())
		}
	})
}

func TestNormalizeKeepsWellFormedParts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		raw       string
		title     string
		tag       string
		targetURL string
		wantErr   bool
	}{
		{name: "string data", raw: `{"notification":{"title":"Locker Ready","tag":"locker-notification"},"data":"oops"}`,
			title: "Locker Ready", tag: "locker-notification", targetURL: "/", wantErr: true},
		{name: "array data", raw: `{"notification":{"title":"Locker Ready","tag":"locker-notification"},"data":[1,2]}`,
			title: "Locker Ready", tag: "locker-notification", targetURL: "/", wantErr: true},
		{name: "bad notification good data", raw: `{"notification":"hello","data":{"targetUrl":"/pickup"}}`,
			title: "New notification", tag: DefaultTag, targetURL: "/pickup", wantErr: true},
		{name: "null members", raw: `{"notification":null,"data":null}`,
			title: "New notification", tag: DefaultTag, targetURL: "/"},
		{name: "non-string title", raw: `{"notification":{"title":7,"tag":"t"}}`,
			title: "New notification", tag: "t", targetURL: "/"},
	}
	n := newTestNormalizer(Options{})
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode err = %v, wantErr %v", err, tt.wantErr)
			}
			in := n.NormalizeRaw([]byte(tt.raw))
			if in.Title != tt.title || in.Tag != tt.tag || in.TargetURL() != tt.targetURL {
				t.Fatalf("intent = %+v, want title=%q tag=%q targetUrl=%q", in, tt.title, tt.tag, tt.targetURL)
			}
			if in.Data[notification.DataTimestamp] == "" {
				t.Fatal("timestamp missing")
			}
		})
	}
}

func TestNormalizeTagAndIcon(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(Options{DefaultTag: "locker-notification"})

	in := n.NormalizeRaw([]byte(`{"notification":{"body":"Door open"}}`))
	if in.Tag != "locker-notification" {
		t.Fatalf("Tag = %q", in.Tag)
	}
	in = n.NormalizeRaw([]byte(`{"notification":{"tag":"order-9","icon":"/i.png"}}`))
	if in.Tag != "order-9" || in.Icon != "/i.png" {
		t.Fatalf("intent = %+v", in)
	}
}

func TestDefaultTextsLocale(t *testing.T) {
	t.Parallel()
	tests := []struct {
		locale string
		title  string
	}{
		{locale: "", title: "New notification"},
		{locale: "en-US", title: "New notification"},
		{locale: "th-TH", title: "แจ้งเตือนจากตู้ล็อกเกอร์"},
		{locale: "th", title: "แจ้งเตือนจากตู้ล็อกเกอร์"},
		{locale: "not a locale!", title: "New notification"},
	}
	for _, tt := range tests {
		if got := DefaultTexts(tt.locale).Title; got != tt.title {
			t.Fatalf("DefaultTexts(%q).Title = %q, want %q", tt.locale, got, tt.title)
		}
	}
}

func TestOptionsOverrideTexts(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(Options{Locale: "th", DefaultBody: "Custom body"})
	in := n.Normalize(Payload{})
	if in.Title != "แจ้งเตือนจากตู้ล็อกเกอร์" || in.Body != "Custom body" {
		t.Fatalf("intent = %+v", in)
	}
}
