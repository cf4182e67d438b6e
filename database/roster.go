package database

import (
	"cobranca/models"
	"context"
	"errors"
	"fmt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"time"
)

// RosterCell одна ячейка графика
type RosterCell struct {
	Row   string `json:"row"`
	Day   int    `json:"day"`
	Value string `json:"value"`
}

// Методы для работы с графиком дежурств

// GetRoster возвращает график месяца
func (d *Database) GetRoster(ctx context.Context, id string) (*models.DutyRoster, error) {
	var roster models.DutyRoster
	if err := d.DB.WithContext(ctx).Where("id = ?", id).First(&roster).Error; err != nil {
		return nil, notFound(err)
	}
	return &roster, nil
}

// ListRosters возвращает найденные графики по списку месяцев
func (d *Database) ListRosters(ctx context.Context, ids []string) ([]models.DutyRoster, error) {
	var rosters []models.DutyRoster
	err := d.DB.WithContext(ctx).Where("id IN ?", ids).Find(&rosters).Error
	return rosters, err
}

// CreateRoster создает график, существующий месяц дает ErrConflict
func (d *Database) CreateRoster(ctx context.Context, roster *models.DutyRoster) error {
	err := d.DB.WithContext(ctx).Create(roster).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

// MergeRoster создает график или сливает сетку с существующей построчно
func (d *Database) MergeRoster(ctx context.Context, roster *models.DutyRoster) error {
	return d.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "grid"}, Value: gorm.Expr("duty_rosters.grid || excluded.grid")},
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
		},
	}).Create(roster).Error
}

// UpdateRosterCells обновляет ячейки существующего графика.
// Если графика нет, возвращает ErrNotFound и ничего не меняет.
func (d *Database) UpdateRosterCells(ctx context.Context, id string, cells []RosterCell) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, cell := range cells {
			day := fmt.Sprint(cell.Day)
			res := tx.Model(&models.DutyRoster{}).Where("id = ?", id).Updates(map[string]interface{}{
				"grid": gorm.Expr(
					"grid || jsonb_build_object(?::text, COALESCE(grid -> ?, '{}'::jsonb) || jsonb_build_object(?::text, ?::text))",
					cell.Row, cell.Row, day, cell.Value,
				),
				"updated_at": time.Now(),
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

// Методы для работы с сотрудниками

// ListStaff возвращает активных сотрудников по алфавиту
func (d *Database) ListStaff(ctx context.Context) ([]models.StaffMember, error) {
	var staff []models.StaffMember
	err := d.DB.WithContext(ctx).Where("active = ?", true).Order("name asc").Find(&staff).Error
	return staff, err
}

// CreateStaff добавляет сотрудника
func (d *Database) CreateStaff(ctx context.Context, member *models.StaffMember) error {
	err := d.DB.WithContext(ctx).Create(member).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

// Методы для юридических записей

// CreateLegalAppointment сохраняет юридическое действие
func (d *Database) CreateLegalAppointment(ctx context.Context, appointment *models.LegalAppointment) error {
	return d.DB.WithContext(ctx).Create(appointment).Error
}

// ListLegalAppointments возвращает действия в интервале [from, to)
func (d *Database) ListLegalAppointments(ctx context.Context, from, to time.Time) ([]models.LegalAppointment, error) {
	var appointments []models.LegalAppointment
	err := d.DB.WithContext(ctx).
		Where("action_date >= ? AND action_date < ?", from, to).
		Order("action_date asc, created_at asc").
		Find(&appointments).Error
	return appointments, err
}

// Методы для работы с пользователями

func (d *Database) CreateUser(ctx context.Context, user *models.User) error {
	err := d.DB.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

func (d *Database) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := d.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (d *Database) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := d.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}
