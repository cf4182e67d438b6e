package services

import (
	"cobranca/database"
	"cobranca/models"
	"cobranca/utils"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateAppointmentDTO данные нового юридического действия
type CreateAppointmentDTO struct {
	Name       string                 `json:"name" validate:"required,max=200"`
	TaxID      string                 `json:"tax_id"`
	ActionDate string                 `json:"action_date" validate:"required"`
	Fields     map[string]interface{} `json:"fields"`
}

// CalendarEntry запись календаря
type CalendarEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LegalService предоставляет методы для юридического календаря
type LegalService struct {
	store     LegalStore
	feed      database.ChangeFeed
	loc       *time.Location
	logger    *zap.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewLegalService создает новый экземпляр LegalService
func NewLegalService(store LegalStore, feed database.ChangeFeed, loc *time.Location, logger *zap.Logger) *LegalService {
	if loc == nil {
		loc = time.UTC
	}
	return &LegalService{
		store:     store,
		feed:      feed,
		loc:       loc,
		logger:    logger,
		validator: validator.New(),
		now:       time.Now,
	}
}

// Create сохраняет юридическое действие, дополнительные поля хранятся как есть
func (s *LegalService) Create(ctx context.Context, dto CreateAppointmentDTO, actor string) (*models.LegalAppointment, error) {
	dto.Name = strings.TrimSpace(dto.Name)
	if err := validateStruct(s.validator, dto); err != nil {
		return nil, err
	}

	actionDate, err := utils.ParseDateBR(dto.ActionDate, s.loc)
	if err != nil {
		return nil, newValidationError("поле ActionDate должно быть датой dd/mm/yyyy")
	}

	if actor == "" {
		actor = "sistema"
	}

	appointment := &models.LegalAppointment{
		ID:         uuid.NewString(),
		Name:       dto.Name,
		TaxID:      utils.OnlyDigits(dto.TaxID),
		ActionDate: actionDate,
		Fields:     dto.Fields,
		CreatedBy:  actor,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateLegalAppointment(ctx, appointment); err != nil {
		return nil, fmt.Errorf("ошибка при сохранении действия: %w", err)
	}

	if s.feed != nil {
		if err := s.feed.Publish(ctx, database.FeedLegalAppointments); err != nil {
			s.logger.Warn("failed to publish change", zap.String("collection", database.FeedLegalAppointments), zap.Error(err))
		}
	}

	s.logger.Info("legal appointment created", zap.String("id", appointment.ID), zap.String("actor", actor))
	return appointment, nil
}

// Calendar возвращает действия месяца по дням
func (s *LegalService) Calendar(ctx context.Context, year int, month time.Month) (map[int][]CalendarEntry, error) {
	if err := validMonth(year, month); err != nil {
		return nil, err
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 1, 0)

	appointments, err := s.store.ListLegalAppointments(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("ошибка при загрузке календаря: %w", err)
	}

	calendar := make(map[int][]CalendarEntry)
	for _, a := range appointments {
		d := a.ActionDate.In(s.loc)
		if d.Year() != year || d.Month() != month {
			continue
		}
		calendar[d.Day()] = append(calendar[d.Day()], CalendarEntry{ID: a.ID, Name: firstName(a.Name)})
	}
	return calendar, nil
}

// firstName первое слово имени; пустое имя показывается как "Processo"
func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return "Processo"
}
