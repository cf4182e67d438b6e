package database

import (
	"context"
	"fmt"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Коллекции, об изменениях которых сообщает лента
const (
	FeedCollectionRecords   = "collection_records"
	FeedLegalTrackRecords   = "legal_track_records"
	FeedDailyMetrics        = "daily_metrics"
	FeedDutyRosters         = "duty_rosters"
	FeedLegalAppointments   = "legal_appointments"
	changeFeedChannelPrefix = "changes:"
)

// Unsubscribe отменяет подписку, повторный вызов ничего не делает
type Unsubscribe func()

// ChangeHandler вызывается после каждого изменения коллекции
type ChangeHandler func(ctx context.Context, collection string)

// ChangeFeed лента изменений коллекций
type ChangeFeed interface {
	Publish(ctx context.Context, collection string) error
	Subscribe(ctx context.Context, collection string, handler ChangeHandler) (Unsubscribe, error)
}

// RedisChangeFeed лента изменений поверх Redis pub/sub, работает между экземплярами сервиса
type RedisChangeFeed struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisClient создает клиент Redis
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisChangeFeed создает ленту изменений на Redis
func NewRedisChangeFeed(client *redis.Client, logger *zap.Logger) *RedisChangeFeed {
	return &RedisChangeFeed{client: client, logger: logger}
}

func channelName(collection string) string {
	return changeFeedChannelPrefix + collection
}

// Publish сообщает подписчикам об изменении коллекции
func (f *RedisChangeFeed) Publish(ctx context.Context, collection string) error {
	if err := f.client.Publish(ctx, channelName(collection), time.Now().UnixNano()).Err(); err != nil {
		return fmt.Errorf("ошибка публикации изменения %s: %w", collection, err)
	}
	return nil
}

// Subscribe подписывает обработчик на изменения коллекции
func (f *RedisChangeFeed) Subscribe(ctx context.Context, collection string, handler ChangeHandler) (Unsubscribe, error) {
	pubsub := f.client.Subscribe(ctx, channelName(collection))
	// Ждем подтверждения подписки, иначе первые сообщения могут потеряться
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("ошибка подписки на %s: %w", collection, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	messages := pubsub.Channel()

	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				handler(subCtx, collection)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if err := pubsub.Close(); err != nil {
				f.logger.Warn("failed to close subscription",
					zap.String("collection", collection),
					zap.Error(err),
				)
			}
		})
	}, nil
}

// MemoryChangeFeed лента изменений внутри процесса (без Redis и в тестах).
// Обработчики вызываются синхронно в горутине Publish.
type MemoryChangeFeed struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]ChangeHandler
}

// NewMemoryChangeFeed создает ленту изменений в памяти
func NewMemoryChangeFeed() *MemoryChangeFeed {
	return &MemoryChangeFeed{handlers: make(map[string]map[int]ChangeHandler)}
}

// Publish вызывает всех подписчиков коллекции
func (f *MemoryChangeFeed) Publish(ctx context.Context, collection string) error {
	f.mu.RLock()
	handlers := make([]ChangeHandler, 0, len(f.handlers[collection]))
	for _, h := range f.handlers[collection] {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, collection)
	}
	return nil
}

// Subscribe регистрирует обработчик
func (f *MemoryChangeFeed) Subscribe(ctx context.Context, collection string, handler ChangeHandler) (Unsubscribe, error) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	if f.handlers[collection] == nil {
		f.handlers[collection] = make(map[int]ChangeHandler)
	}
	f.handlers[collection][id] = handler
	f.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers[collection], id)
			f.mu.Unlock()
		})
	}

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			unsubscribe()
		}()
	}
	return unsubscribe, nil
}
