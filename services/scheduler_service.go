package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SchedulerService периодически перечитывает рабочий список и снимает устаревшие метки
type SchedulerService struct {
	collection *CollectionService
	interval   time.Duration
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewSchedulerService создает новый экземпляр SchedulerService
func NewSchedulerService(collection *CollectionService, interval time.Duration, logger *zap.Logger) *SchedulerService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SchedulerService{
		collection: collection,
		interval:   interval,
		logger:     logger,
	}
}

// Start запускает планировщик до отмены ctx
func (s *SchedulerService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce выполняет один проход: снятие меток и перезагрузка рабочего списка
func (s *SchedulerService) RunOnce(ctx context.Context) {
	cleared, err := s.collection.SweepExpiredTags(ctx)
	if err != nil {
		s.logger.Error("tag expiry sweep failed", zap.Error(err))
	} else if cleared > 0 {
		s.logger.Info("expired tags cleared", zap.Int("count", cleared))
	}

	if _, err := s.collection.Load(ctx); err != nil {
		s.logger.Error("collection reload failed", zap.Error(err))
	}
}

// Wait дожидается остановки планировщика
func (s *SchedulerService) Wait() {
	s.wg.Wait()
}
