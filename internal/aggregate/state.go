package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// StateStore remembers how far into the event log the aggregator has flushed. The
// stored value is an event timestamp: every window ending at or before it has already
// reached the stats sink, and a resumed run skips events up to it.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

// FileStateStore keeps the checkpoint of one events JSONL in a small JSON file next to
// it. Checkpoints are tied to a window size; resuming an hourly run with daily windows
// starts from the beginning of the log.
type FileStateStore struct {
	Path          string
	WindowSeconds uint64
}

type checkpoint struct {
	Through       uint64 `json:"through_ts"`
	WindowSeconds uint64 `json:"window_seconds"`
	WrittenAt     string `json:"written_at"`
}

func (s *FileStateStore) Load(_ context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	cp, err := s.read()
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if cp.WindowSeconds != s.WindowSeconds {
		return 0, false, nil
	}
	return cp.Through, true, nil
}

// Save replaces the checkpoint atomically through a temp file.
func (s *FileStateStore) Save(_ context.Context, ts uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.Marshal(checkpoint{
		Through:       ts,
		WindowSeconds: s.WindowSeconds,
		WrittenAt:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("replace checkpoint %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileStateStore) read() (checkpoint, error) {
	var cp checkpoint
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return cp, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("decode checkpoint %s: %w", s.Path, err)
	}
	return cp, nil
}
