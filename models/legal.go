package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// LegalTrackRecord запись о долге, переданном в юридическое сопровождение
type LegalTrackRecord struct {
	ID        string          `gorm:"primaryKey;type:uuid" json:"id"`
	Name      string          `gorm:"column:name;not null;size:200" json:"name"`
	TaxID     string          `gorm:"column:tax_id;size:20;index" json:"tax_id"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null;default:0" json:"amount"`
	Status    RecordStatus    `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	Payment   PaymentInfo     `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// TableName возвращает имя таблицы для модели LegalTrackRecord
func (LegalTrackRecord) TableName() string {
	return "legal_track_records"
}

// LegalAppointment запланированное юридическое действие
type LegalAppointment struct {
	ID         string            `gorm:"primaryKey;type:uuid" json:"id"`
	Name       string            `gorm:"column:name;not null;size:200" json:"name"`
	TaxID      string            `gorm:"column:tax_id;size:20" json:"tax_id,omitempty"`
	ActionDate time.Time         `gorm:"column:action_date;not null;index" json:"action_date"`
	Fields     datatypes.JSONMap `gorm:"column:fields;type:jsonb" json:"fields,omitempty"`
	CreatedBy  string            `gorm:"column:created_by;size:100" json:"created_by"`
	CreatedAt  time.Time         `gorm:"column:created_at" json:"created_at"`
}

// TableName возвращает имя таблицы для модели LegalAppointment
func (LegalAppointment) TableName() string {
	return "legal_appointments"
}
