package models

import "time"

// DailyMetric дневная метрика по одной стадии взыскания.
// Таблица пополняется внешним процессом, сервис ее только читает.
type DailyMetric struct {
	Date       time.Time `gorm:"column:date;type:date;primaryKey" json:"date"`
	Stage      string    `gorm:"column:stage;size:100;primaryKey" json:"stage"`
	Debited    float64   `gorm:"column:debited;not null;default:0" json:"debited"`
	Paid       float64   `gorm:"column:paid;not null;default:0" json:"paid"`
	Outreach   int       `gorm:"column:outreach;not null;default:0" json:"outreach"`
	PaidCard   int       `gorm:"column:paid_card;not null;default:0" json:"paid_card"`
	PaidPix    int       `gorm:"column:paid_pix;not null;default:0" json:"paid_pix"`
	PaidBoleto int       `gorm:"column:paid_boleto;not null;default:0" json:"paid_boleto"`
}

// TableName возвращает имя таблицы для модели DailyMetric
func (DailyMetric) TableName() string {
	return "daily_metrics"
}
