package services

import (
	"cobranca/config"
	"cobranca/database"
	"cobranca/models"
	"cobranca/utils"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// PaymentNotifier отправляет уведомление о зарегистрированном платеже
type PaymentNotifier interface {
	SendPaymentNotification(to string, record *models.CollectionRecord) error
}

// TemplateSender отправляет шаблонное сообщение должнику
type TemplateSender interface {
	SendTemplate(ctx context.Context, record *models.CollectionRecord) error
}

// CollectionSettings параметры рабочего списка
type CollectionSettings struct {
	MinOverdueDays int
	MaxOverdueDays int
	TagTTL         time.Duration
	PermanentTags  []string
	Location       *time.Location
	FinanceEmail   string
}

// SettingsFromConfig собирает параметры рабочего списка из конфигурации
func SettingsFromConfig(cfg *config.Config) CollectionSettings {
	return CollectionSettings{
		MinOverdueDays: cfg.Collection.MinOverdueDays,
		MaxOverdueDays: cfg.Collection.MaxOverdueDays,
		TagTTL:         cfg.Collection.TagTTL,
		PermanentTags:  cfg.Collection.PermanentTags,
		Location:       cfg.Location(),
		FinanceEmail:   cfg.SMTP.FinanceTo,
	}
}

// CollectionService предоставляет методы для работы с рабочим списком 3ª cobrança
type CollectionService struct {
	store     CollectionStore
	feed      database.ChangeFeed
	state     *CollectionState
	notifier  PaymentNotifier
	templates TemplateSender
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *utils.Metrics
	settings  CollectionSettings
	permanent map[string]bool
	now       func() time.Time

	// фоновые задачи: снятие просроченных меток и письма
	background sync.WaitGroup
}

// NewCollectionService создает новый экземпляр CollectionService
func NewCollectionService(store CollectionStore, feed database.ChangeFeed, settings CollectionSettings, logger *zap.Logger, metrics *utils.Metrics) *CollectionService {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	permanent := make(map[string]bool, len(settings.PermanentTags))
	for _, kind := range settings.PermanentTags {
		permanent[kind] = true
	}
	return &CollectionService{
		store:     store,
		feed:      feed,
		state:     NewCollectionState(),
		exporter:  NewExportService(settings.Location),
		validator: validator.New(),
		logger:    logger,
		metrics:   metrics,
		settings:  settings,
		permanent: permanent,
		now:       time.Now,
	}
}

// WithNotifier подключает уведомления о платежах
func (s *CollectionService) WithNotifier(n PaymentNotifier) *CollectionService {
	s.notifier = n
	return s
}

// WithTemplateSender подключает отправку шаблонов WhatsApp
func (s *CollectionService) WithTemplateSender(t TemplateSender) *CollectionService {
	s.templates = t
	return s
}

// WithClock подменяет источник времени
func (s *CollectionService) WithClock(now func() time.Time) *CollectionService {
	s.now = now
	return s
}

// State возвращает текущий рабочий список
func (s *CollectionService) State() *CollectionState {
	return s.state
}

// Wait дожидается фоновых задач (используется при остановке и в тестах)
func (s *CollectionService) Wait() {
	s.background.Wait()
}

// IsKnownTag проверяет вид метки
func (s *CollectionService) IsKnownTag(kind string) bool {
	switch kind {
	case models.TagLinkSent, models.TagLinkScheduled, models.TagNegotiating:
		return true
	}
	return s.permanent[kind]
}

// IsPermanentTag сообщает, что метка не снимается по сроку
func (s *CollectionService) IsPermanentTag(kind string) bool {
	return s.permanent[kind]
}

// tagExpired проверяет, что метку пора снять
func (s *CollectionService) tagExpired(tag models.StatusTag, now time.Time) bool {
	if tag.Empty() || s.permanent[tag.Kind] || tag.AppliedAt == nil {
		return false
	}
	return now.Sub(*tag.AppliedAt) > s.settings.TagTTL
}

// Load загружает записи, оставляет активные с просрочкой в окне и снимает устаревшие метки.
// При ошибке рабочий список становится пустым.
func (s *CollectionService) Load(ctx context.Context) ([]LoadedRecord, error) {
	start := time.Now()

	records, err := s.store.ListCollectionRecords(ctx)
	if err != nil {
		s.state.Replace(nil, s.now())
		s.metrics.RecordError(err)
		utils.LogOperation(s.logger, "collection.load", start, err)
		return nil, fmt.Errorf("ошибка при загрузке записей: %w", err)
	}

	now := s.now()
	var expired []models.CollectionRecord
	loaded := make([]LoadedRecord, 0, len(records))

	for _, rec := range records {
		if s.tagExpired(rec.Tag, now) {
			expired = append(expired, rec)
			rec.Tag = models.StatusTag{}
		}

		if rec.Status != models.RecordStatusActive {
			continue
		}
		days := utils.DaysBetween(rec.DueDate, now, s.settings.Location)
		if days < s.settings.MinOverdueDays || days >= s.settings.MaxOverdueDays {
			continue
		}
		loaded = append(loaded, LoadedRecord{CollectionRecord: rec, DaysOverdue: days})
	}

	s.state.Replace(loaded, now)
	s.metrics.RecordLoad(len(loaded))

	if len(expired) > 0 {
		s.clearExpiredAsync(expired, now)
	}

	s.logger.Debug("collection loaded",
		zap.Int("fetched", len(records)),
		zap.Int("working_set", len(loaded)),
		zap.Int("expired_tags", len(expired)),
	)
	return loaded, nil
}

// Groups группирует текущий рабочий список
func (s *CollectionService) Groups(term string) []*GroupedRecord {
	return SortGroups(Group(s.state.Search(term)))
}

// clearExpiredAsync снимает метки в хранилище без ожидания, ошибки только логируются
func (s *CollectionService) clearExpiredAsync(records []models.CollectionRecord, now time.Time) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if cleared := s.clearTags(ctx, records, now); len(cleared) > 0 {
			s.publish(ctx, database.FeedCollectionRecords)
		}
	}()
}

// SweepExpiredTags снимает устаревшие метки у всех записей (вызывается планировщиком)
func (s *CollectionService) SweepExpiredTags(ctx context.Context) (int, error) {
	tagged, err := s.store.ListTaggedRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка при получении записей с метками: %w", err)
	}

	now := s.now()
	var expired []models.CollectionRecord
	for _, rec := range tagged {
		if s.tagExpired(rec.Tag, now) {
			expired = append(expired, rec)
		}
	}

	cleared := s.clearTags(ctx, expired, now)
	for _, rec := range cleared {
		seen := rec.Tag
		s.state.Update(rec.ID, func(r *LoadedRecord) {
			if sameTag(r.Tag, seen) {
				r.Tag = models.StatusTag{}
			}
		})
	}
	if len(cleared) > 0 {
		s.publish(ctx, database.FeedCollectionRecords)
	}
	return len(cleared), nil
}

// clearTags снимает метки, не изменившиеся с момента чтения, и возвращает снятые
func (s *CollectionService) clearTags(ctx context.Context, records []models.CollectionRecord, now time.Time) []models.CollectionRecord {
	var cleared []models.CollectionRecord
	for _, rec := range records {
		entry := models.AuditEntry{
			Kind:      models.AuditTagExpired,
			Detail:    "Status expirado: " + models.TagLabel(rec.Tag.Kind),
			Actor:     "Sistema",
			Timestamp: now,
		}
		ok, err := s.store.ClearExpiredTag(ctx, rec.ID, rec.Tag, &entry)
		if err != nil {
			s.metrics.RecordTagExpiry(err)
			s.logger.Warn("failed to clear expired tag",
				zap.String("record_id", rec.ID),
				zap.String("tag", rec.Tag.Kind),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			s.logger.Debug("tag changed before expiry, skipped",
				zap.String("record_id", rec.ID),
				zap.String("tag", rec.Tag.Kind),
			)
			continue
		}
		s.metrics.RecordTagExpiry(nil)
		cleared = append(cleared, rec)
	}
	return cleared
}

func sameTag(a, b models.StatusTag) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.AppliedAt == nil || b.AppliedAt == nil {
		return a.AppliedAt == nil && b.AppliedAt == nil
	}
	return a.AppliedAt.Equal(*b.AppliedAt)
}

func clearTagFields() map[string]interface{} {
	return map[string]interface{}{
		"tag_kind":       "",
		"tag_applied_at": nil,
		"tag_applied_by": "",
	}
}

// publish сообщает об изменении, ошибка ленты не отменяет уже выполненную запись
func (s *CollectionService) publish(ctx context.Context, collection string) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, collection); err != nil {
		s.logger.Warn("failed to publish change", zap.String("collection", collection), zap.Error(err))
	}
}

// ApplyTagToGroup ставит одну и ту же метку всем записям персоны одной транзакцией.
// Пустой вид снимает метку.
func (s *CollectionService) ApplyTagToGroup(ctx context.Context, key, kind, actor string) (*GroupedRecord, error) {
	if kind != "" && !s.IsKnownTag(kind) {
		return nil, ErrUnknownTag
	}

	members := s.state.Members(key)
	if len(members) == 0 {
		return nil, database.ErrNotFound
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	now := s.now()
	fields, tag, entry := s.tagChange(kind, actor, now)
	if err := s.store.UpdateCollectionRecords(ctx, ids, fields, &entry); err != nil {
		s.metrics.RecordError(err)
		return nil, fmt.Errorf("ошибка при установке метки: %w", err)
	}

	for _, id := range ids {
		s.state.Update(id, func(r *LoadedRecord) {
			r.Tag = tag
			r.LastActor = actor
			r.LastActionAt = &now
		})
	}
	s.metrics.RecordCollectionOperation("tag", len(ids))
	s.publish(ctx, database.FeedCollectionRecords)

	s.logger.Info("tag applied to group",
		zap.String("key", key),
		zap.String("tag", kind),
		zap.Int("records", len(ids)),
		zap.String("actor", actor),
	)

	return Group(s.state.Members(key))[key], nil
}

// SetRecordTag ставит или снимает метку одной записи
func (s *CollectionService) SetRecordTag(ctx context.Context, id, kind, actor string) error {
	if kind != "" && !s.IsKnownTag(kind) {
		return ErrUnknownTag
	}

	now := s.now()
	fields, tag, entry := s.tagChange(kind, actor, now)
	if err := s.store.UpdateCollectionRecord(ctx, id, fields, &entry); err != nil {
		return fmt.Errorf("ошибка при установке метки: %w", err)
	}

	s.state.Update(id, func(r *LoadedRecord) {
		r.Tag = tag
		r.LastActor = actor
		r.LastActionAt = &now
	})
	s.metrics.RecordCollectionOperation("tag", 1)
	s.publish(ctx, database.FeedCollectionRecords)
	return nil
}

func (s *CollectionService) tagChange(kind, actor string, now time.Time) (map[string]interface{}, models.StatusTag, models.AuditEntry) {
	entry := models.AuditEntry{
		Kind:      models.AuditTag,
		Actor:     actor,
		Timestamp: now,
	}

	if kind == "" {
		fields := clearTagFields()
		fields["last_actor"] = actor
		fields["last_action_at"] = now
		entry.Detail = "Status removido"
		return fields, models.StatusTag{}, entry
	}

	tag := models.StatusTag{Kind: kind, AppliedAt: &now, AppliedBy: actor}
	fields := map[string]interface{}{
		"tag_kind":       kind,
		"tag_applied_at": now,
		"tag_applied_by": actor,
		"last_actor":     actor,
		"last_action_at": now,
	}
	entry.Detail = "Status alterado para " + models.TagLabel(kind)
	return fields, tag, entry
}

// isNotFound сообщает, что запись не найдена
func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
