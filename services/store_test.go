package services

import (
	"cobranca/database"
	"cobranca/models"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"gorm.io/datatypes"
)

// memoryStore хранилище в памяти для тестов сервисов
type memoryStore struct {
	mu sync.Mutex

	records      map[string]models.CollectionRecord
	legal        []models.LegalTrackRecord
	metrics      []models.DailyMetric
	rosters      map[string]models.DutyRoster
	staff        []models.StaffMember
	appointments []models.LegalAppointment
	users        map[string]models.User

	failList   error
	failUpdate error
	// clearGate задерживает снятие устаревшей метки до закрытия канала
	clearGate  chan struct{}
	updates    int
	rosterHits int
}

func newMemoryStore(records ...models.CollectionRecord) *memoryStore {
	s := &memoryStore{
		records: make(map[string]models.CollectionRecord),
		rosters: make(map[string]models.DutyRoster),
		users:   make(map[string]models.User),
	}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *memoryStore) record(id string) models.CollectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *memoryStore) sortedRecords(filter func(r models.CollectionRecord) bool) []models.CollectionRecord {
	out := make([]models.CollectionRecord, 0, len(s.records))
	for _, r := range s.records {
		if filter == nil || filter(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memoryStore) ListCollectionRecords(ctx context.Context) ([]models.CollectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}
	return s.sortedRecords(nil), nil
}

func (s *memoryStore) ListTaggedRecords(ctx context.Context) ([]models.CollectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedRecords(func(r models.CollectionRecord) bool { return r.Tag.Kind != "" }), nil
}

func (s *memoryStore) ListPaidRecords(ctx context.Context) ([]models.CollectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedRecords(func(r models.CollectionRecord) bool { return r.Status == models.RecordStatusPaid }), nil
}

func (s *memoryStore) GetCollectionRecord(ctx context.Context, id string) (*models.CollectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &r, nil
}

func (s *memoryStore) CreateCollectionRecords(ctx context.Context, records []models.CollectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

func timePtr(v interface{}) *time.Time {
	if t, ok := v.(time.Time); ok {
		return &t
	}
	return nil
}

// apply переносит изменения по именам колонок на запись
func apply(r *models.CollectionRecord, fields map[string]interface{}) {
	for column, v := range fields {
		switch column {
		case "tag_kind":
			r.Tag.Kind = v.(string)
		case "tag_applied_at":
			r.Tag.AppliedAt = timePtr(v)
		case "tag_applied_by":
			r.Tag.AppliedBy = v.(string)
		case "last_actor":
			r.LastActor = v.(string)
		case "last_action_at":
			r.LastActionAt = timePtr(v)
		case "status":
			r.Status = v.(models.RecordStatus)
		case "payment_paid_at":
			r.Payment.PaidAt = timePtr(v)
		case "payment_origin":
			r.Payment.Origin = v.(string)
		case "payment_recorded_by":
			r.Payment.RecordedBy = v.(string)
		case "proposals":
			r.Proposals = v.(datatypes.JSON)
		default:
			panic("unknown column " + column)
		}
	}
}

func (s *memoryStore) updateLocked(id string, fields map[string]interface{}, entry *models.AuditEntry) error {
	r, ok := s.records[id]
	if !ok {
		return database.ErrNotFound
	}
	apply(&r, fields)
	if entry != nil {
		if err := r.AppendAudit(*entry); err != nil {
			return err
		}
	}
	s.records[id] = r
	s.updates++
	return nil
}

func (s *memoryStore) UpdateCollectionRecord(ctx context.Context, id string, fields map[string]interface{}, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	return s.updateLocked(id, fields, entry)
}

func (s *memoryStore) UpdateCollectionRecords(ctx context.Context, ids []string, fields map[string]interface{}, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	for _, id := range ids {
		if _, ok := s.records[id]; !ok {
			return database.ErrNotFound
		}
	}
	for _, id := range ids {
		if err := s.updateLocked(id, fields, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *memoryStore) ClearExpiredTag(ctx context.Context, id string, seen models.StatusTag, entry *models.AuditEntry) (bool, error) {
	if s.clearGate != nil {
		<-s.clearGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return false, s.failUpdate
	}
	r, ok := s.records[id]
	if !ok || !sameTag(r.Tag, seen) {
		return false, nil
	}
	err := s.updateLocked(id, map[string]interface{}{
		"tag_kind":       "",
		"tag_applied_at": nil,
		"tag_applied_by": "",
	}, entry)
	return err == nil, err
}

func (s *memoryStore) IncrementCounter(ctx context.Context, id, column string, fields map[string]interface{}, build func(n int) models.AuditEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return 0, database.ErrNotFound
	}
	var n int
	switch column {
	case "call_count":
		r.CallCount++
		n = r.CallCount
	case "message_count":
		r.MessageCount++
		n = r.MessageCount
	default:
		return 0, fmt.Errorf("unknown counter %s", column)
	}
	s.records[id] = r
	entry := build(n)
	return n, s.updateLocked(id, fields, &entry)
}

func (s *memoryStore) DeleteCollectionRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return database.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memoryStore) ListLegalTrackRecords(ctx context.Context) ([]models.LegalTrackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LegalTrackRecord(nil), s.legal...), nil
}

func (s *memoryStore) ListDailyMetrics(ctx context.Context) ([]models.DailyMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DailyMetric(nil), s.metrics...), nil
}

func (s *memoryStore) setMetrics(metrics []models.DailyMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = metrics
}

func (s *memoryStore) GetRoster(ctx context.Context, id string) (*models.DutyRoster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rosters[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &r, nil
}

func (s *memoryStore) ListRosters(ctx context.Context, ids []string) ([]models.DutyRoster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosterHits++
	var out []models.DutyRoster
	for _, id := range ids {
		if r, ok := s.rosters[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) CreateRoster(ctx context.Context, roster *models.DutyRoster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rosters[roster.ID]; ok {
		return database.ErrConflict
	}
	s.rosters[roster.ID] = *roster
	return nil
}

func (s *memoryStore) MergeRoster(ctx context.Context, roster *models.DutyRoster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rosters[roster.ID]
	if !ok {
		s.rosters[roster.ID] = *roster
		return nil
	}
	grid, _ := existing.Cells()
	incoming, _ := roster.Cells()
	for row, days := range incoming {
		grid[row] = days
	}
	if err := existing.SetCells(grid); err != nil {
		return err
	}
	s.rosters[roster.ID] = existing
	return nil
}

func (s *memoryStore) UpdateRosterCells(ctx context.Context, id string, cells []database.RosterCell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rosters[id]
	if !ok {
		return database.ErrNotFound
	}
	grid, err := r.Cells()
	if err != nil {
		return err
	}
	for _, c := range cells {
		if grid[c.Row] == nil {
			grid[c.Row] = map[string]string{}
		}
		grid[c.Row][strconv.Itoa(c.Day)] = c.Value
	}
	if err := r.SetCells(grid); err != nil {
		return err
	}
	s.rosters[id] = r
	return nil
}

func (s *memoryStore) ListStaff(ctx context.Context) ([]models.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StaffMember(nil), s.staff...), nil
}

func (s *memoryStore) CreateStaff(ctx context.Context, member *models.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.staff {
		if m.Name == member.Name {
			return database.ErrConflict
		}
	}
	member.ID = uint(len(s.staff) + 1)
	s.staff = append(s.staff, *member)
	return nil
}

func (s *memoryStore) CreateLegalAppointment(ctx context.Context, appointment *models.LegalAppointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = append(s.appointments, *appointment)
	return nil
}

func (s *memoryStore) ListLegalAppointments(ctx context.Context, from, to time.Time) ([]models.LegalAppointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LegalAppointment
	for _, a := range s.appointments {
		if !a.ActionDate.Before(from) && a.ActionDate.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return database.ErrConflict
	}
	user.ID = uint(len(s.users) + 1)
	s.users[user.Email] = *user
	return nil
}

func (s *memoryStore) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

var (
	_ CollectionStore = (*memoryStore)(nil)
	_ DashboardStore  = (*memoryStore)(nil)
	_ RosterStore     = (*memoryStore)(nil)
	_ LegalStore      = (*memoryStore)(nil)
	_ UserStore       = (*memoryStore)(nil)
)

var errBoom = errors.New("boom")
