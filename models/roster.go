package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// RosterGrid ячейки графика: строка -> день месяца -> имена
type RosterGrid map[string]map[string]string

// RosterRow строка графика дежурств
type RosterRow struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Shift string `json:"shift,omitempty"`
}

// Строки будних дней
var WeekdayRows = []RosterRow{
	{Key: "ferias", Label: "Férias"},
	{Key: "folga", Label: "Folga"},
	{Key: "gerencia", Label: "Gerência", Shift: "9h às 18h"},
	{Key: "analista", Label: "Analista Cobrança", Shift: "08h às 17h"},
	{Key: "supervisor1", Label: "Supervisora 1", Shift: "08h às 17h"},
	{Key: "atend_08_14", Label: "Atendente Financeiro", Shift: "08h às 14h"},
	{Key: "atend_08_16", Label: "Atendente Financeiro", Shift: "08h às 16h"},
	{Key: "supervisor2", Label: "Supervisora 2", Shift: "11h às 20h"},
	{Key: "atend_14_20", Label: "Atendente Financeiro", Shift: "14h às 20h"},
	{Key: "atend_12_20", Label: "Atendente Financeiro", Shift: "12h às 20h"},
}

// Строки выходных
var WeekendRows = []RosterRow{
	{Key: "fds_folga", Label: "FOLGA FDS"},
	{Key: "fds_8_14", Label: "8h às 14h"},
	{Key: "fds_10_16", Label: "10h às 16h"},
	{Key: "fds_12_18", Label: "12h às 18h"},
}

// IsWeekdayRow проверяет, что строка относится к будним дням
func IsWeekdayRow(key string) bool {
	for _, row := range WeekdayRows {
		if row.Key == key {
			return true
		}
	}
	return false
}

// IsRosterRow проверяет, что ключ строки известен
func IsRosterRow(key string) bool {
	for _, rows := range [][]RosterRow{WeekdayRows, WeekendRows} {
		for _, row := range rows {
			if row.Key == key {
				return true
			}
		}
	}
	return false
}

// DutyRoster график дежурств на месяц, ID в формате YYYY-MM
type DutyRoster struct {
	ID        string         `gorm:"primaryKey;size:7" json:"id"`
	Grid      datatypes.JSON `gorm:"column:grid;type:jsonb;not null" json:"grid"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

// TableName возвращает имя таблицы для модели DutyRoster
func (DutyRoster) TableName() string {
	return "duty_rosters"
}

// RosterID формирует идентификатор месяца
func RosterID(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// Cells разбирает сетку графика
func (r *DutyRoster) Cells() (RosterGrid, error) {
	grid := RosterGrid{}
	if len(r.Grid) == 0 {
		return grid, nil
	}
	if err := json.Unmarshal(r.Grid, &grid); err != nil {
		return nil, err
	}
	return grid, nil
}

// SetCells сохраняет сетку графика
func (r *DutyRoster) SetCells(grid RosterGrid) error {
	raw, err := json.Marshal(grid)
	if err != nil {
		return err
	}
	r.Grid = datatypes.JSON(raw)
	return nil
}

// StaffMember сотрудник отдела взыскания
type StaffMember struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;not null;size:100;uniqueIndex" json:"name"`
	Email     string    `gorm:"column:email;size:100;index" json:"email,omitempty"`
	Active    bool      `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName возвращает имя таблицы для модели StaffMember
func (StaffMember) TableName() string {
	return "staff_members"
}
