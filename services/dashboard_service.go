package services

import (
	"cobranca/database"
	"cobranca/utils"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DashboardListener получает пересчитанный дашборд
type DashboardListener func(d *Dashboard)

// DashboardService держит три источника дашборда и пересчитывает его при каждом обновлении
type DashboardService struct {
	store  DashboardStore
	feed   database.ChangeFeed
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time

	mu       sync.RWMutex
	input    DashboardInput
	snapshot *Dashboard

	listenersMu sync.Mutex
	listeners   map[int]DashboardListener
	nextID      int

	unsubscribes []database.Unsubscribe
}

// NewDashboardService создает новый экземпляр DashboardService
func NewDashboardService(store DashboardStore, feed database.ChangeFeed, loc *time.Location, logger *zap.Logger) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{
		store:     store,
		feed:      feed,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
		listeners: make(map[int]DashboardListener),
	}
}

// WithClock подменяет источник времени
func (s *DashboardService) WithClock(now func() time.Time) *DashboardService {
	s.now = now
	return s
}

// Start загружает источники и подписывается на их изменения
func (s *DashboardService) Start(ctx context.Context) error {
	sources := []string{
		database.FeedCollectionRecords,
		database.FeedLegalTrackRecords,
		database.FeedDailyMetrics,
	}

	for _, collection := range sources {
		if err := s.reload(ctx, collection); err != nil {
			return err
		}
	}
	s.recompute()

	if s.feed == nil {
		return nil
	}

	for _, collection := range sources {
		unsubscribe, err := s.feed.Subscribe(ctx, collection, s.onChange)
		if err != nil {
			s.Stop()
			return fmt.Errorf("ошибка при подписке на %s: %w", collection, err)
		}
		s.unsubscribes = append(s.unsubscribes, unsubscribe)
	}

	s.logger.Info("dashboard started", zap.Int("sources", len(sources)))
	return nil
}

// Stop отменяет подписки
func (s *DashboardService) Stop() {
	for _, unsubscribe := range s.unsubscribes {
		unsubscribe()
	}
	s.unsubscribes = nil
}

// onChange перечитывает изменившийся источник и пересчитывает дашборд
func (s *DashboardService) onChange(ctx context.Context, collection string) {
	if err := s.reload(ctx, collection); err != nil {
		s.logger.Warn("failed to reload dashboard source", zap.String("collection", collection), zap.Error(err))
		return
	}
	s.recompute()
}

// reload перечитывает один источник, остальные не трогает
func (s *DashboardService) reload(ctx context.Context, collection string) error {
	start := time.Now()
	var err error

	switch collection {
	case database.FeedCollectionRecords:
		records, e := s.store.ListCollectionRecords(ctx)
		if err = e; err == nil {
			s.mu.Lock()
			s.input.Records = records
			s.mu.Unlock()
		}
	case database.FeedLegalTrackRecords:
		legal, e := s.store.ListLegalTrackRecords(ctx)
		if err = e; err == nil {
			s.mu.Lock()
			s.input.Legal = legal
			s.mu.Unlock()
		}
	case database.FeedDailyMetrics:
		metrics, e := s.store.ListDailyMetrics(ctx)
		if err = e; err == nil {
			s.mu.Lock()
			s.input.Metrics = metrics
			s.mu.Unlock()
		}
	default:
		return nil
	}

	utils.LogOperation(s.logger, "dashboard.reload."+collection, start, err)
	if err != nil {
		return fmt.Errorf("ошибка при загрузке %s: %w", collection, err)
	}
	return nil
}

// recompute считает дашборд без фильтра и рассылает его подписчикам
func (s *DashboardService) recompute() {
	d := s.Compute(DashboardFilter{})

	s.mu.Lock()
	s.snapshot = d
	s.mu.Unlock()

	s.listenersMu.Lock()
	listeners := make([]DashboardListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(d)
	}
}

// Compute считает дашборд по текущим данным с фильтром
func (s *DashboardService) Compute(filter DashboardFilter) *Dashboard {
	s.mu.RLock()
	input := s.input
	s.mu.RUnlock()
	return ComputeDashboard(input, filter, s.loc, s.now())
}

// Snapshot возвращает последний рассчитанный дашборд без фильтра
func (s *DashboardService) Snapshot() *Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Subscribe добавляет слушателя; возвращает функцию отписки
func (s *DashboardService) Subscribe(listener DashboardListener) database.Unsubscribe {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}
