package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Bew090/projectlocker/internal/notification"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

// fileStore keeps the record table in memory and mirrors it to disk.
//
// Files:
//   - <prefix>.records.snapshot.json (map tag -> row, rewritten on compaction)
//   - <prefix>.records.journal.jsonl (append-only put/del ops)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	rows         map[string]recordRow

	writes       int
	compactEvery int
}

type journalOp struct {
	Op  string     `json:"op"` // "put" | "del"
	Tag string     `json:"tag"`
	Row *recordRow `json:"row,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".records.snapshot.json"
	journalPath := prefix + ".records.journal.jsonl"

	rows := map[string]recordRow{}
	if err := loadSnapshot(snapPath, rows); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("record snapshot unreadable; starting from journal", logx.Err(err))
	}
	if err := replayJournal(journalPath, rows); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("record journal replay stopped early", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	every := cfg.CompactEvery
	if every <= 0 {
		every = 1000
	}
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		rows:         rows,
		compactEvery: every,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) PutRecord(_ context.Context, r notification.Record) error {
	tag := r.Intent.Tag
	if strings.TrimSpace(tag) == "" {
		return nil
	}
	row := rowFromRecord(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalOp{Op: "put", Tag: tag, Row: &row}); err != nil {
		return err
	}
	s.rows[tag] = row
	return nil
}

func (s *fileStore) DeleteRecord(_ context.Context, tag string) error {
	if strings.TrimSpace(tag) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalOp{Op: "del", Tag: tag}); err != nil {
		return err
	}
	delete(s.rows, tag)
	return nil
}

func (s *fileStore) LoadRecords(_ context.Context) ([]notification.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notification.Record, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row.record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Intent.Tag < out[j].Intent.Tag })
	return out, nil
}

func (s *fileStore) Compact(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrDisabled
	}
	return s.compactLocked()
}

func (s *fileStore) appendLocked(op journalOp) error {
	if s.journalFile == nil {
		return errors.New("record journal closed")
	}
	if err := json.NewEncoder(s.journalFile).Encode(op); err != nil {
		return err
	}
	s.writes++
	if s.writes%s.compactEvery == 0 {
		// Best-effort; the journal still holds everything.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("record compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.rows); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out map[string]recordRow) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]recordRow
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]recordRow) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var op journalOp
		if err := json.Unmarshal(sc.Bytes(), &op); err != nil {
			// Torn tail write; skip.
			continue
		}
		if op.Tag == "" {
			continue
		}
		switch op.Op {
		case "put":
			if op.Row != nil {
				out[op.Tag] = *op.Row
			}
		case "del":
			delete(out, op.Tag)
		}
	}
	return sc.Err()
}
