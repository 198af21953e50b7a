package aggregate

import (
	"context"
	"fmt"
)

// StateBackend is the named checkpoint table of a database store.
type StateBackend interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// DBStateStore stores state in the engine_state table under a per-window name.
type DBStateStore struct {
	Store         StateBackend
	WindowSeconds uint64
}

func (s *DBStateStore) name() string {
	return fmt.Sprintf("aggregate:%d", s.WindowSeconds)
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Store == nil {
		return 0, false, nil
	}
	return s.Store.LoadState(ctx, s.name())
}

func (s *DBStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.name(), ts)
}
