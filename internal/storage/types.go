package storage

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/Bew090/projectlocker/internal/notification"
)

var ErrDisabled = errors.New("storage disabled")

// Store is the persistence API used by the dedup store.
//
// Writes are upserts keyed by tag. Implementations must be safe for
// concurrent use, although the engine serializes writes through one goroutine.
type Store interface {
	PutRecord(ctx context.Context, r notification.Record) error
	DeleteRecord(ctx context.Context, tag string) error
	LoadRecords(ctx context.Context) ([]notification.Record, error)
	// Compact folds journals/WAL into the primary representation.
	Compact(ctx context.Context) error
	Close() error
}

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// CompactEvery triggers a file-driver compaction after N journal writes.
	// 0 means the default (1000).
	CompactEvery int
}

// recordRow is the on-disk shape shared by both drivers.
// Times are unix nanoseconds; 0 means unset.
type recordRow struct {
	Tag        string            `json:"tag"`
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Icon       string            `json:"icon,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	ReceivedAt int64             `json:"received_at"`
	State      string            `json:"state"`
	ShownAt    int64             `json:"shown_at,omitempty"`
	UpdatedAt  int64             `json:"updated_at"`
	Generation uint64            `json:"generation"`
}

func rowFromRecord(r notification.Record) recordRow {
	return recordRow{
		Tag:        r.Intent.Tag,
		ID:         r.ID,
		Title:      r.Intent.Title,
		Body:       r.Intent.Body,
		Icon:       r.Intent.Icon,
		Data:       maps.Clone(r.Intent.Data),
		ReceivedAt: toNanos(r.Intent.ReceivedAt),
		State:      r.State.String(),
		ShownAt:    toNanos(r.ShownAt),
		UpdatedAt:  toNanos(r.UpdatedAt),
		Generation: r.Generation,
	}
}

func (row recordRow) record() notification.Record {
	return notification.Record{
		ID: row.ID,
		Intent: notification.Intent{
			Tag:        row.Tag,
			Title:      row.Title,
			Body:       row.Body,
			Icon:       row.Icon,
			Data:       maps.Clone(row.Data),
			ReceivedAt: fromNanos(row.ReceivedAt),
		},
		State:      notification.ParseState(row.State),
		ShownAt:    fromNanos(row.ShownAt),
		UpdatedAt:  fromNanos(row.UpdatedAt),
		Generation: row.Generation,
	}
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
