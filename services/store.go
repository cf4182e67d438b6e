package services

import (
	"cobranca/database"
	"cobranca/models"
	"context"
	"time"
)

// CollectionStore хранилище записей cobrança
type CollectionStore interface {
	ListCollectionRecords(ctx context.Context) ([]models.CollectionRecord, error)
	ListTaggedRecords(ctx context.Context) ([]models.CollectionRecord, error)
	ListPaidRecords(ctx context.Context) ([]models.CollectionRecord, error)
	GetCollectionRecord(ctx context.Context, id string) (*models.CollectionRecord, error)
	CreateCollectionRecords(ctx context.Context, records []models.CollectionRecord) error
	UpdateCollectionRecord(ctx context.Context, id string, fields map[string]interface{}, entry *models.AuditEntry) error
	UpdateCollectionRecords(ctx context.Context, ids []string, fields map[string]interface{}, entry *models.AuditEntry) error
	ClearExpiredTag(ctx context.Context, id string, seen models.StatusTag, entry *models.AuditEntry) (bool, error)
	IncrementCounter(ctx context.Context, id, column string, fields map[string]interface{}, build func(n int) models.AuditEntry) (int, error)
	DeleteCollectionRecord(ctx context.Context, id string) error
}

// DashboardStore источники данных дашборда
type DashboardStore interface {
	ListCollectionRecords(ctx context.Context) ([]models.CollectionRecord, error)
	ListLegalTrackRecords(ctx context.Context) ([]models.LegalTrackRecord, error)
	ListDailyMetrics(ctx context.Context) ([]models.DailyMetric, error)
}

// RosterStore хранилище графика дежурств и сотрудников
type RosterStore interface {
	GetRoster(ctx context.Context, id string) (*models.DutyRoster, error)
	ListRosters(ctx context.Context, ids []string) ([]models.DutyRoster, error)
	CreateRoster(ctx context.Context, roster *models.DutyRoster) error
	MergeRoster(ctx context.Context, roster *models.DutyRoster) error
	UpdateRosterCells(ctx context.Context, id string, cells []database.RosterCell) error
	ListStaff(ctx context.Context) ([]models.StaffMember, error)
	CreateStaff(ctx context.Context, member *models.StaffMember) error
}

// LegalStore хранилище юридических действий
type LegalStore interface {
	CreateLegalAppointment(ctx context.Context, appointment *models.LegalAppointment) error
	ListLegalAppointments(ctx context.Context, from, to time.Time) ([]models.LegalAppointment, error)
}

// UserStore хранилище пользователей
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

var (
	_ CollectionStore = (*database.Database)(nil)
	_ DashboardStore  = (*database.Database)(nil)
	_ RosterStore     = (*database.Database)(nil)
	_ LegalStore      = (*database.Database)(nil)
	_ UserStore       = (*database.Database)(nil)
)
