package services

import (
	"cobranca/database"
	"cobranca/models"
	"cobranca/utils"
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Команды, применяемые к записи по ее ID
const (
	CommandCall     = "call"
	CommandTemplate = "template"
	CommandProposal = "proposal"
	CommandTag      = "tag"
	CommandPayment  = "payment"
	CommandArchive  = "archive"
)

// RecordCommand команда над записью рабочего списка
type RecordCommand struct {
	Command  string `json:"command" validate:"required,oneof=call template proposal tag payment archive"`
	Slot     int    `json:"slot,omitempty"`
	Text     string `json:"text,omitempty"`
	Tag      string `json:"tag,omitempty"`
	PaidAt   string `json:"paid_at,omitempty"`
	Origin   string `json:"origin,omitempty"`
	ActorID  uint   `json:"-"`
	Actor    string `json:"-" validate:"required"`
	IsAdmin  bool   `json:"-"`
	RecordID string `json:"-" validate:"required"`
}

// CommandResult результат команды
type CommandResult struct {
	RecordID string `json:"record_id"`
	Command  string `json:"command"`
	Counter  int    `json:"counter,omitempty"`
	Changed  bool   `json:"changed"`
}

// RegisterPaymentDTO данные о платеже
type RegisterPaymentDTO struct {
	PaidAt string `json:"paid_at" validate:"required"`
	Origin string `json:"origin" validate:"required"`
}

// Dispatch выполняет команду над записью
func (s *CollectionService) Dispatch(ctx context.Context, cmd RecordCommand) (*CommandResult, error) {
	if err := validateStruct(s.validator, cmd); err != nil {
		return nil, err
	}

	result := &CommandResult{RecordID: cmd.RecordID, Command: cmd.Command, Changed: true}

	switch cmd.Command {
	case CommandCall:
		n, err := s.RegisterCall(ctx, cmd.RecordID, cmd.Actor)
		if err != nil {
			return nil, err
		}
		result.Counter = n
	case CommandTemplate:
		n, err := s.SendTemplate(ctx, cmd.RecordID, cmd.Actor)
		if err != nil {
			return nil, err
		}
		result.Counter = n
	case CommandProposal:
		changed, err := s.SaveProposal(ctx, cmd.RecordID, cmd.Slot, cmd.Text, cmd.Actor)
		if err != nil {
			return nil, err
		}
		result.Changed = changed
	case CommandTag:
		if err := s.SetRecordTag(ctx, cmd.RecordID, cmd.Tag, cmd.Actor); err != nil {
			return nil, err
		}
	case CommandPayment:
		dto := RegisterPaymentDTO{PaidAt: cmd.PaidAt, Origin: cmd.Origin}
		if err := s.RegisterPayment(ctx, cmd.RecordID, dto, cmd.Actor); err != nil {
			return nil, err
		}
	case CommandArchive:
		if !cmd.IsAdmin {
			return nil, ErrForbidden
		}
		if err := s.Archive(ctx, cmd.RecordID, cmd.Actor); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// RegisterCall фиксирует звонок должнику
func (s *CollectionService) RegisterCall(ctx context.Context, id, actor string) (int, error) {
	return s.incrementStage(ctx, id, "call_count", actor, func(n int, now time.Time) models.AuditEntry {
		return models.AuditEntry{
			Kind:      models.AuditCall,
			Detail:    fmt.Sprintf("Ligação #%d realizada", n),
			Actor:     actor,
			Timestamp: now,
		}
	})
}

// SendTemplate отправляет шаблон (если подключен WhatsApp) и фиксирует его в счетчике
func (s *CollectionService) SendTemplate(ctx context.Context, id, actor string) (int, error) {
	if s.templates != nil {
		record, err := s.store.GetCollectionRecord(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("ошибка при получении записи: %w", err)
		}
		if err := s.templates.SendTemplate(ctx, record); err != nil {
			s.metrics.RecordError(err)
			return 0, fmt.Errorf("ошибка при отправке шаблона: %w", err)
		}
	}

	return s.incrementStage(ctx, id, "message_count", actor, func(n int, now time.Time) models.AuditEntry {
		return models.AuditEntry{
			Kind:      models.AuditTemplate,
			Detail:    fmt.Sprintf("Template #%d enviado", n),
			Actor:     actor,
			Timestamp: now,
		}
	})
}

func (s *CollectionService) incrementStage(ctx context.Context, id, column, actor string, build func(n int, now time.Time) models.AuditEntry) (int, error) {
	now := s.now()
	fields := map[string]interface{}{
		"last_actor":     actor,
		"last_action_at": now,
	}

	n, err := s.store.IncrementCounter(ctx, id, column, fields, func(n int) models.AuditEntry {
		return build(n, now)
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка при обновлении счетчика: %w", err)
	}

	s.state.Update(id, func(r *LoadedRecord) {
		if column == "call_count" {
			r.CallCount = n
		} else {
			r.MessageCount = n
		}
		r.LastActor = actor
		r.LastActionAt = &now
	})
	s.publish(ctx, database.FeedCollectionRecords)
	return n, nil
}

// SaveProposal сохраняет предложение в слот 1..4; неизмененный текст не записывается
func (s *CollectionService) SaveProposal(ctx context.Context, id string, slot int, text, actor string) (bool, error) {
	if slot < 1 || slot > len(models.Proposals{}) {
		return false, newValidationError("поле slot должно быть от 1 до 4")
	}

	record, err := s.store.GetCollectionRecord(ctx, id)
	if err != nil {
		return false, fmt.Errorf("ошибка при получении записи: %w", err)
	}

	proposals := record.ProposalSlots()
	if proposals[slot-1] == text {
		return false, nil
	}
	proposals[slot-1] = text

	raw, err := json.Marshal(proposals)
	if err != nil {
		return false, err
	}

	now := s.now()
	fields := map[string]interface{}{
		"proposals":      datatypes.JSON(raw),
		"last_actor":     actor,
		"last_action_at": now,
	}
	entry := models.AuditEntry{
		Kind:      models.AuditProposal,
		Detail:    fmt.Sprintf("Editou Proposta %d", slot),
		Actor:     actor,
		Timestamp: now,
		Content:   preview(text, 50),
	}
	if err := s.store.UpdateCollectionRecord(ctx, id, fields, &entry); err != nil {
		return false, fmt.Errorf("ошибка при сохранении предложения: %w", err)
	}

	s.state.Update(id, func(r *LoadedRecord) {
		r.Proposals = datatypes.JSON(raw)
		r.LastActor = actor
		r.LastActionAt = &now
	})
	s.publish(ctx, database.FeedCollectionRecords)
	return true, nil
}

// preview обрезает текст до limit символов
func preview(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}

// RegisterPayment отмечает долг оплаченным и убирает запись из рабочего списка
func (s *CollectionService) RegisterPayment(ctx context.Context, id string, dto RegisterPaymentDTO, actor string) error {
	if err := validateStruct(s.validator, dto); err != nil {
		return err
	}

	paidAt, err := utils.ParseDateBR(dto.PaidAt, s.settings.Location)
	if err != nil {
		return newValidationError("поле PaidAt должно быть датой dd/mm/yyyy")
	}

	now := s.now()
	fields := map[string]interface{}{
		"status":              models.RecordStatusPaid,
		"payment_paid_at":     paidAt,
		"payment_origin":      dto.Origin,
		"payment_recorded_by": actor,
		"last_actor":          actor,
		"last_action_at":      now,
	}
	entry := models.AuditEntry{
		Kind:      models.AuditPayment,
		Detail:    "Pagamento registrado via " + dto.Origin,
		Actor:     actor,
		Timestamp: now,
	}
	if err := s.store.UpdateCollectionRecord(ctx, id, fields, &entry); err != nil {
		s.metrics.RecordError(err)
		return fmt.Errorf("ошибка при регистрации платежа: %w", err)
	}

	s.state.Remove(id)
	s.metrics.RecordCollectionOperation("payment", 1)
	s.publish(ctx, database.FeedCollectionRecords)

	s.logger.Info("payment registered",
		zap.String("record_id", id),
		zap.String("origin", dto.Origin),
		zap.String("actor", actor),
	)

	s.notifyPayment(id)
	return nil
}

// notifyPayment отправляет письмо финансовому отделу в фоне
func (s *CollectionService) notifyPayment(id string) {
	if s.notifier == nil || s.settings.FinanceEmail == "" {
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		record, err := s.store.GetCollectionRecord(ctx, id)
		if err != nil {
			s.logger.Warn("failed to load record for payment notification", zap.String("record_id", id), zap.Error(err))
			return
		}
		if err := s.notifier.SendPaymentNotification(s.settings.FinanceEmail, record); err != nil {
			s.logger.Warn("failed to send payment notification", zap.String("record_id", id), zap.Error(err))
		}
	}()
}

// Archive удаляет запись навсегда
func (s *CollectionService) Archive(ctx context.Context, id, actor string) error {
	if err := s.store.DeleteCollectionRecord(ctx, id); err != nil {
		return fmt.Errorf("ошибка при удалении записи: %w", err)
	}

	s.state.Remove(id)
	s.publish(ctx, database.FeedCollectionRecords)
	s.logger.Info("record archived", zap.String("record_id", id), zap.String("actor", actor))
	return nil
}

// PaidRecords возвращает оплаченные записи для отчета
func (s *CollectionService) PaidRecords(ctx context.Context) ([]models.CollectionRecord, error) {
	records, err := s.store.ListPaidRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении платежей: %w", err)
	}
	sortPaidDesc(records)
	return records, nil
}
