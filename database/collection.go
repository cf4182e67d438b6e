package database

import (
	"cobranca/models"
	"context"
	"encoding/json"
	"fmt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Методы для работы с записями cobrança

// ListCollectionRecords возвращает все записи, новые первыми
func (d *Database) ListCollectionRecords(ctx context.Context) ([]models.CollectionRecord, error) {
	var records []models.CollectionRecord
	err := d.DB.WithContext(ctx).Order("created_at desc").Find(&records).Error
	return records, err
}

// ListTaggedRecords возвращает записи с установленной меткой
func (d *Database) ListTaggedRecords(ctx context.Context) ([]models.CollectionRecord, error) {
	var records []models.CollectionRecord
	err := d.DB.WithContext(ctx).Where("tag_kind <> ''").Find(&records).Error
	return records, err
}

// ListPaidRecords возвращает оплаченные записи по убыванию даты оплаты
func (d *Database) ListPaidRecords(ctx context.Context) ([]models.CollectionRecord, error) {
	var records []models.CollectionRecord
	err := d.DB.WithContext(ctx).
		Where("status = ?", models.RecordStatusPaid).
		Order("payment_paid_at desc nulls last").
		Find(&records).Error
	return records, err
}

// GetCollectionRecord возвращает запись по ID
func (d *Database) GetCollectionRecord(ctx context.Context, id string) (*models.CollectionRecord, error) {
	var record models.CollectionRecord
	if err := d.DB.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

// CreateCollectionRecords вставляет записи одной транзакцией
func (d *Database) CreateCollectionRecords(ctx context.Context, records []models.CollectionRecord) error {
	if len(records) == 0 {
		return nil
	}
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(records, 100).Error
	})
}

// UpdateCollectionRecord обновляет поля записи и дописывает запись в журнал
func (d *Database) UpdateCollectionRecord(ctx context.Context, id string, fields map[string]interface{}, entry *models.AuditEntry) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return updateRecord(tx, id, fields, entry)
	})
}

// UpdateCollectionRecords применяет одни и те же поля к нескольким записям атомарно.
// Каждая запись получает свою запись в журнале.
func (d *Database) UpdateCollectionRecords(ctx context.Context, ids []string, fields map[string]interface{}, entry *models.AuditEntry) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := updateRecord(tx, id, fields, entry); err != nil {
				return fmt.Errorf("запись %s: %w", id, err)
			}
		}
		return nil
	})
}

// IncrementCounter увеличивает счетчик (call_count или message_count) под блокировкой строки.
// build получает новое значение счетчика и строит запись журнала.
func (d *Database) IncrementCounter(ctx context.Context, id, column string, fields map[string]interface{}, build func(n int) models.AuditEntry) (int, error) {
	if column != "call_count" && column != "message_count" {
		return 0, fmt.Errorf("неизвестный счетчик %q", column)
	}

	var next int
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.CollectionRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&record).Error; err != nil {
			return notFound(err)
		}

		next = record.CallCount + 1
		if column == "message_count" {
			next = record.MessageCount + 1
		}

		updates := map[string]interface{}{column: next}
		for k, v := range fields {
			updates[k] = v
		}
		entry := build(next)
		return updateRecord(tx, id, updates, &entry)
	})
	return next, err
}

// DeleteCollectionRecord удаляет запись навсегда
func (d *Database) DeleteCollectionRecord(ctx context.Context, id string) error {
	res := d.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.CollectionRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearExpiredTag снимает метку, только если в хранилище лежит та же метка, что была прочитана.
// false без ошибки означает, что метку уже сменили или сняли.
func (d *Database) ClearExpiredTag(ctx context.Context, id string, seen models.StatusTag, entry *models.AuditEntry) (bool, error) {
	updates, err := withAudit(map[string]interface{}{
		"tag_kind":       "",
		"tag_applied_at": nil,
		"tag_applied_by": "",
	}, entry)
	if err != nil {
		return false, err
	}

	query := d.DB.WithContext(ctx).Model(&models.CollectionRecord{}).
		Where("id = ? AND tag_kind = ?", id, seen.Kind)
	if seen.AppliedAt != nil {
		query = query.Where("tag_applied_at = ?", *seen.AppliedAt)
	} else {
		query = query.Where("tag_applied_at IS NULL")
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func withAudit(fields map[string]interface{}, entry *models.AuditEntry) (map[string]interface{}, error) {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	if entry != nil {
		raw, err := json.Marshal([]models.AuditEntry{*entry})
		if err != nil {
			return nil, err
		}
		updates["audit_log"] = gorm.Expr("COALESCE(audit_log, '[]'::jsonb) || ?::jsonb", string(raw))
	}
	return updates, nil
}

func updateRecord(tx *gorm.DB, id string, fields map[string]interface{}, entry *models.AuditEntry) error {
	updates, err := withAudit(fields, entry)
	if err != nil {
		return err
	}

	res := tx.Model(&models.CollectionRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Методы для юридического трека и метрик

// ListLegalTrackRecords возвращает записи юридического трека
func (d *Database) ListLegalTrackRecords(ctx context.Context) ([]models.LegalTrackRecord, error) {
	var records []models.LegalTrackRecord
	err := d.DB.WithContext(ctx).Find(&records).Error
	return records, err
}

// ListDailyMetrics возвращает дневные метрики по возрастанию даты
func (d *Database) ListDailyMetrics(ctx context.Context) ([]models.DailyMetric, error) {
	var metrics []models.DailyMetric
	err := d.DB.WithContext(ctx).Order("date asc, stage asc").Find(&metrics).Error
	return metrics, err
}
