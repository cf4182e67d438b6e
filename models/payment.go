package models

import (
	"strings"
	"time"
)

// Способы оплаты для дашборда
const (
	PaymentKindPix    = "Pix"
	PaymentKindCard   = "Cartão"
	PaymentKindBoleto = "Boleto"
	PaymentKindOther  = "Outros"
)

// PaymentInfo сведения о погашении долга
type PaymentInfo struct {
	PaidAt     *time.Time `gorm:"column:paid_at;index" json:"paid_at,omitempty"`
	Origin     string     `gorm:"column:origin;size:100" json:"origin,omitempty"`
	RecordedBy string     `gorm:"column:recorded_by;size:100" json:"recorded_by,omitempty"`
}

// Settled сообщает, что платеж зарегистрирован
func (p PaymentInfo) Settled() bool {
	return p.PaidAt != nil
}

// ClassifyPaymentOrigin сводит произвольное происхождение платежа к способу оплаты
func ClassifyPaymentOrigin(origin string) string {
	o := strings.ToLower(origin)
	switch {
	case o == "":
		return PaymentKindOther
	case strings.Contains(o, "pix"):
		return PaymentKindPix
	case strings.Contains(o, "cart"):
		return PaymentKindCard
	case strings.Contains(o, "boleto"):
		return PaymentKindBoleto
	default:
		return origin
	}
}
