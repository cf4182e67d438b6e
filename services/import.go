package services

import (
	"cobranca/database"
	"cobranca/models"
	"cobranca/utils"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Колонки вставляемой таблицы
const (
	colName = iota
	colEmail
	colTaxID
	colPhone
	colCourse
	colPaymentMethod
	colAmount
	colDueDate
	colThirdNotice
	colLegalDeadline
	importColumns
)

// minImportColumns строки короче не считаются записями
const minImportColumns = 3

// ImportSkip строка, пропущенная при импорте
type ImportSkip struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportResult итог импорта
type ImportResult struct {
	Imported int          `json:"imported"`
	Skipped  []ImportSkip `json:"skipped"`
}

// ParseImport разбирает текст, скопированный из таблицы (колонки через табуляцию).
// Порядок колонок: имя, email, CPF, телефон, курс, форма оплаты, сумма, дата погашения, дата 3ª cobrança, юридический срок.
func ParseImport(text string, loc *time.Location, now time.Time) ([]models.CollectionRecord, []ImportSkip) {
	if loc == nil {
		loc = time.UTC
	}

	var records []models.CollectionRecord
	skipped := []ImportSkip{}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < minImportColumns {
			skipped = append(skipped, ImportSkip{Line: i + 1, Reason: "poucas colunas"})
			continue
		}
		for len(cols) < importColumns {
			cols = append(cols, "")
		}
		for j := range cols {
			cols[j] = strings.TrimSpace(cols[j])
		}

		if cols[colName] == "" {
			skipped = append(skipped, ImportSkip{Line: i + 1, Reason: "nome vazio"})
			continue
		}

		due, err := utils.ParseDateBR(cols[colDueDate], loc)
		if err != nil {
			skipped = append(skipped, ImportSkip{Line: i + 1, Reason: "vencimento inválido: " + cols[colDueDate]})
			continue
		}

		amount, err := utils.ParseAmount(cols[colAmount])
		if err != nil {
			skipped = append(skipped, ImportSkip{Line: i + 1, Reason: "valor inválido: " + cols[colAmount]})
			continue
		}

		records = append(records, models.CollectionRecord{
			ID:              uuid.NewString(),
			Name:            cols[colName],
			Email:           cols[colEmail],
			TaxID:           cols[colTaxID],
			Phone:           utils.NormalizePhone(cols[colPhone]),
			Course:          cols[colCourse],
			PaymentMethod:   cols[colPaymentMethod],
			Amount:          amount,
			DueDate:         due,
			ThirdNoticeDate: dateOr(cols[colThirdNotice], loc, now),
			LegalDeadline:   dateOr(cols[colLegalDeadline], loc, now),
			Status:          models.RecordStatusActive,
		})
	}

	return records, skipped
}

// dateOr разбирает дату, при пустом или неверном значении возвращает fallback
func dateOr(raw string, loc *time.Location, fallback time.Time) *time.Time {
	t, err := utils.ParseDateBR(raw, loc)
	if err != nil {
		t = fallback
	}
	return &t
}

// Import сохраняет вставленные строки одной пачкой
func (s *CollectionService) Import(ctx context.Context, text, actor string) (*ImportResult, error) {
	start := time.Now()
	now := s.now()

	records, skipped := ParseImport(text, s.settings.Location, now)
	s.metrics.RecordCollectionOperation("skip", len(skipped))

	if len(records) == 0 {
		return &ImportResult{Skipped: skipped}, nil
	}

	for i := range records {
		records[i].LastActor = actor
		if err := records[i].SetProposalSlots(models.Proposals{}); err != nil {
			return nil, err
		}
		if err := records[i].AppendAudit(models.AuditEntry{
			Kind:      models.AuditImport,
			Detail:    "Registro importado",
			Actor:     actor,
			Timestamp: now,
		}); err != nil {
			return nil, err
		}
	}

	err := s.store.CreateCollectionRecords(ctx, records)
	utils.LogOperation(s.logger, "collection.import", start, err)
	if err != nil {
		s.metrics.RecordError(err)
		return nil, fmt.Errorf("ошибка при импорте записей: %w", err)
	}

	s.metrics.RecordCollectionOperation("import", len(records))
	s.publish(ctx, database.FeedCollectionRecords)

	s.logger.Info("records imported",
		zap.Int("imported", len(records)),
		zap.Int("skipped", len(skipped)),
		zap.String("actor", actor),
	)

	return &ImportResult{Imported: len(records), Skipped: skipped}, nil
}
