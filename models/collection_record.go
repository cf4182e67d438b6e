package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RecordStatus представляет статус записи cobrança
type RecordStatus string

const (
	RecordStatusActive RecordStatus = "ACTIVE"
	RecordStatusPaid   RecordStatus = "PAID"
)

// Виды меток рабочего процесса
const (
	TagLinkSent      = "link_enviado"
	TagLinkScheduled = "link_agendado"
	TagNegotiating   = "em_negociacao"
)

// Виды записей журнала
const (
	AuditCall       = "ligacao"
	AuditTemplate   = "template"
	AuditProposal   = "proposta"
	AuditTag        = "status"
	AuditTagExpired = "tag_expired"
	AuditPayment    = "pagamento"
	AuditImport     = "importacao"
)

// StatusTag короткоживущая метка записи
type StatusTag struct {
	Kind      string     `gorm:"column:kind;size:50;not null;default:''" json:"kind"`
	AppliedAt *time.Time `gorm:"column:applied_at" json:"applied_at,omitempty"`
	AppliedBy string     `gorm:"column:applied_by;size:100" json:"applied_by,omitempty"`
}

// Empty сообщает, что метки нет
func (t StatusTag) Empty() bool {
	return t.Kind == ""
}

// AuditEntry запись журнала действий по долгу
type AuditEntry struct {
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content,omitempty"`
}

// Proposals четыре свободных поля с предложениями по соглашению
type Proposals [4]string

// CollectionRecord представляет запись о долге студента по одному курсу
type CollectionRecord struct {
	ID              string          `gorm:"primaryKey;type:uuid" json:"id"`
	Name            string          `gorm:"column:name;not null;size:200;index" json:"name"`
	Email           string          `gorm:"column:email;size:200;index" json:"email"`
	TaxID           string          `gorm:"column:tax_id;size:20;index" json:"tax_id"`
	Phone           string          `gorm:"column:phone;size:20" json:"phone"`
	Course          string          `gorm:"column:course;size:200" json:"course"`
	PaymentMethod   string          `gorm:"column:payment_method;size:50" json:"payment_method"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null;default:0" json:"amount"`
	DueDate         time.Time       `gorm:"column:due_date;not null" json:"due_date"`
	ThirdNoticeDate *time.Time      `gorm:"column:third_notice_date" json:"third_notice_date,omitempty"`
	LegalDeadline   *time.Time      `gorm:"column:legal_deadline" json:"legal_deadline,omitempty"`
	CallCount       int             `gorm:"column:call_count;not null;default:0" json:"call_count"`
	MessageCount    int             `gorm:"column:message_count;not null;default:0" json:"message_count"`
	Status          RecordStatus    `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	Tag             StatusTag       `gorm:"embedded;embeddedPrefix:tag_" json:"tag"`
	Proposals       datatypes.JSON  `gorm:"column:proposals;type:jsonb" json:"proposals"`
	Payment         PaymentInfo     `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	LastActionAt    *time.Time      `gorm:"column:last_action_at" json:"last_action_at,omitempty"`
	LastActor       string          `gorm:"column:last_actor;size:100" json:"last_actor,omitempty"`
	AuditLog        datatypes.JSON  `gorm:"column:audit_log;type:jsonb" json:"audit_log"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// TableName возвращает имя таблицы для модели CollectionRecord
func (CollectionRecord) TableName() string {
	return "collection_records"
}

// IdentityKey возвращает ключ персоны: CPF, иначе email, иначе имя
func (r *CollectionRecord) IdentityKey() string {
	for _, v := range []string{r.TaxID, r.Email, r.Name} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// AuditEntries разбирает журнал действий
func (r *CollectionRecord) AuditEntries() ([]AuditEntry, error) {
	if len(r.AuditLog) == 0 {
		return nil, nil
	}
	var entries []AuditEntry
	if err := json.Unmarshal(r.AuditLog, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AppendAudit добавляет запись в журнал в памяти
func (r *CollectionRecord) AppendAudit(entry AuditEntry) error {
	entries, err := r.AuditEntries()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(append(entries, entry))
	if err != nil {
		return err
	}
	r.AuditLog = datatypes.JSON(raw)
	return nil
}

// ProposalSlots возвращает предложения, пустые слоты остаются пустыми
func (r *CollectionRecord) ProposalSlots() Proposals {
	var p Proposals
	if len(r.Proposals) > 0 {
		_ = json.Unmarshal(r.Proposals, &p)
	}
	return p
}

// SetProposalSlots сохраняет предложения
func (r *CollectionRecord) SetProposalSlots(p Proposals) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	r.Proposals = datatypes.JSON(raw)
	return nil
}

// TagLabel возвращает подпись метки для интерфейса
func TagLabel(kind string) string {
	switch kind {
	case TagLinkSent:
		return "Link enviado"
	case TagLinkScheduled:
		return "Link agendado"
	case TagNegotiating:
		return "Em negociação"
	default:
		return kind
	}
}
