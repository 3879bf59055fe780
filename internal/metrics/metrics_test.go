package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ObserveDecision("insert")
	m.ObserveDisplay(false)
	m.ObserveClick("opened")
	m.ObserveTransition("active", 0)
	m.ObserveMessage("channel")
	m.SetRecords(map[string]int{"shown": 1})
	m.ObserveJob("sweep", time.Second, nil)

	New(nil).ObserveDecision("insert")
}

func TestCountersExport(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDecision("insert")
	m.ObserveDecision("replace")
	m.ObserveDecision("replace")
	m.ObserveDisplay(true)
	m.ObserveDisplay(false)
	m.ObserveClick("")
	m.ObserveTransition("degraded", 3)

	if got := testutil.ToFloat64(m.admissions.WithLabelValues("replace")); got != 2 {
		t.Fatalf("replace admissions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.displays.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed displays = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.clicks.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("unknown clicks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.retries); got != 3 {
		t.Fatalf("retries = %v, want 3", got)
	}
}

func TestRecordsGaugeResets(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())
	m.SetRecords(map[string]int{"shown": 2, "clicked": 1})
	m.SetRecords(map[string]int{"pending": 1})

	if got := testutil.CollectAndCount(m.records); got != 1 {
		t.Fatalf("series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.records.WithLabelValues("pending")); got != 1 {
		t.Fatalf("pending = %v", got)
	}
}

func TestObserveJob(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())
	m.ObserveJob("expire", 10*time.Millisecond, nil)
	m.ObserveJob("expire", 10*time.Millisecond, errors.New("disk"))

	if got := testutil.ToFloat64(m.jobSuccess.WithLabelValues("expire")); got != 1 {
		t.Fatalf("success = %v", got)
	}
	if got := testutil.ToFloat64(m.jobFailure.WithLabelValues("expire")); got != 1 {
		t.Fatalf("failure = %v", got)
	}
}
