package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Bew090/projectlocker/internal/notification"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

func sampleRecord(tag string, st notification.State) notification.Record {
	at := time.Date(2026, 10, 18, 9, 0, 0, 123456789, time.UTC)
	r := notification.Record{
		ID: "id-" + tag,
		Intent: notification.Intent{
			Tag:        tag,
			Title:      "Locker Ready",
			Body:       "Slot 4",
			Data:       map[string]string{"targetUrl": "/pickup", "timestamp": "1"},
			ReceivedAt: at,
		},
		State:      st,
		UpdatedAt:  at.Add(time.Second),
		Generation: 2,
	}
	if st != notification.StatePending {
		r.ShownAt = at.Add(500 * time.Millisecond)
	}
	return r
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "bolt", Path: "x"}, logx.Nop()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("Open(bolt) err = %v, want ErrUnknownDriver", err)
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("Open(sqlite) without path succeeded")
	}
}

func TestDrivers(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "engine.db")
			cfg := Config{Driver: driver, Path: path, CompactEvery: 3}
			ctx := context.Background()

			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			a := sampleRecord("a", notification.StateShown)
			b := sampleRecord("b", notification.StatePending)
			c := sampleRecord("c", notification.StateClicked)
			for _, r := range []notification.Record{a, b, c} {
				if err := st.PutRecord(ctx, r); err != nil {
					t.Fatalf("PutRecord(%s): %v", r.Tag(), err)
				}
			}
			b.State = notification.StateShown
			b.ShownAt = b.Intent.ReceivedAt.Add(time.Second)
			if err := st.PutRecord(ctx, b); err != nil {
				t.Fatalf("PutRecord(b again): %v", err)
			}
			if err := st.DeleteRecord(ctx, "c"); err != nil {
				t.Fatalf("DeleteRecord: %v", err)
			}
			if err := st.Compact(ctx); err != nil {
				t.Fatalf("Compact: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			st, err = Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st.Close()
			got, err := st.LoadRecords(ctx)
			if err != nil {
				t.Fatalf("LoadRecords: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("len = %d, want 2 (%+v)", len(got), got)
			}
			if got[0].Tag() != "a" || got[1].Tag() != "b" {
				t.Fatalf("tags = %s,%s", got[0].Tag(), got[1].Tag())
			}
			if got[1].State != notification.StateShown || !got[1].ShownAt.Equal(b.ShownAt) {
				t.Fatalf("b = %+v", got[1])
			}
			if !got[0].Intent.ReceivedAt.Equal(a.Intent.ReceivedAt) {
				t.Fatalf("ReceivedAt = %v, want %v", got[0].Intent.ReceivedAt, a.Intent.ReceivedAt)
			}
			if got[0].Intent.Data["targetUrl"] != "/pickup" || got[0].Generation != 2 || got[0].ID != "id-a" {
				t.Fatalf("a = %+v", got[0])
			}
		})
	}
}

func TestFileJournalSurvivesWithoutCompact(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "engine.json")
	cfg := Config{Driver: "file", Path: path}
	ctx := context.Background()

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.PutRecord(ctx, sampleRecord("x", notification.StatePending)); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	_ = st.Close()

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got, _ := st.LoadRecords(ctx)
	if len(got) != 1 || !got[0].ShownAt.IsZero() {
		t.Fatalf("records = %+v", got)
	}
}
