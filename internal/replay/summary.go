package replay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"liquidityEngine/internal/aggregate"
	"liquidityEngine/internal/model"
)

// summarySink folds committed events into per-pool window stats as they are emitted.
type summarySink struct {
	mu  sync.Mutex
	agg *aggregate.Aggregator
}

func newSummarySink(windowSeconds uint64, decimals uint8, logger *zap.Logger) *summarySink {
	return &summarySink{
		agg: aggregate.NewAggregator(aggregate.Config{
			WindowSeconds: windowSeconds,
			Decimals:      decimals,
		}, nil, logger),
	}
}

func (s *summarySink) PutEvents(_ context.Context, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range events {
		record, err := event.Record()
		if err != nil {
			return err
		}
		if err := s.agg.Add(record); err != nil {
			return err
		}
	}
	return nil
}

func (s *summarySink) close() []model.PoolWindowStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.Close()
}
