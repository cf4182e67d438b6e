package services

import (
	"cobranca/database"
	"cobranca/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const rosterCachePrefix = "roster:"

// RosterMonth график одного месяца
type RosterMonth struct {
	ID    string            `json:"id"`
	Year  int               `json:"year"`
	Month int               `json:"month"`
	Grid  models.RosterGrid `json:"grid"`
	Empty bool              `json:"empty"`
}

// Value возвращает значение ячейки
func (m *RosterMonth) Value(row string, day int) string {
	return m.Grid[row][strconv.Itoa(day)]
}

// RosterView месяц вместе с соседними, нужен для недель на стыке месяцев
type RosterView struct {
	Previous RosterMonth `json:"previous"`
	Current  RosterMonth `json:"current"`
	Next     RosterMonth `json:"next"`
}

// SaveCellDTO изменение одной ячейки
type SaveCellDTO struct {
	Row   string `json:"row" validate:"required"`
	Day   int    `json:"day" validate:"required,min=1,max=31"`
	Value string `json:"value" validate:"max=500"`
}

// AssignStaffDTO перенос сотрудника в ячейку
type AssignStaffDTO struct {
	Row  string `json:"row" validate:"required"`
	Day  int    `json:"day" validate:"required,min=1,max=31"`
	Name string `json:"name" validate:"required"`
}

// RosterService предоставляет методы для работы с графиком дежурств
type RosterService struct {
	store     RosterStore
	cache     database.Cache
	feed      database.ChangeFeed
	cacheTTL  time.Duration
	logger    *zap.Logger
	validator *validator.Validate
}

// NewRosterService создает новый экземпляр RosterService
func NewRosterService(store RosterStore, cache database.Cache, feed database.ChangeFeed, cacheTTL time.Duration, logger *zap.Logger) *RosterService {
	return &RosterService{
		store:     store,
		cache:     cache,
		feed:      feed,
		cacheTTL:  cacheTTL,
		logger:    logger,
		validator: validator.New(),
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func monthOf(year int, month time.Month, delta int) (int, time.Month) {
	t := time.Date(year, month+time.Month(delta), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}

func validMonth(year int, month time.Month) error {
	if month < time.January || month > time.December || year < 2000 || year > 2100 {
		return newValidationError("неверный месяц графика")
	}
	return nil
}

// GetMonth возвращает месяц с соседними; отсутствующие месяцы пустые
func (s *RosterService) GetMonth(ctx context.Context, year int, month time.Month) (*RosterView, error) {
	if err := validMonth(year, month); err != nil {
		return nil, err
	}

	py, pm := monthOf(year, month, -1)
	ny, nm := monthOf(year, month, 1)
	wanted := []struct {
		year  int
		month time.Month
	}{{py, pm}, {year, month}, {ny, nm}}

	months := make([]RosterMonth, len(wanted))
	var missing []string
	index := map[string]int{}

	for i, w := range wanted {
		id := models.RosterID(w.year, w.month)
		months[i] = RosterMonth{ID: id, Year: w.year, Month: int(w.month), Grid: models.RosterGrid{}, Empty: true}
		if cached, ok := s.cached(ctx, id); ok {
			months[i] = *cached
			continue
		}
		missing = append(missing, id)
		index[id] = i
	}

	if len(missing) > 0 {
		rosters, err := s.store.ListRosters(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("ошибка при загрузке графика: %w", err)
		}
		for _, r := range rosters {
			grid, err := r.Cells()
			if err != nil {
				return nil, fmt.Errorf("ошибка при разборе графика %s: %w", r.ID, err)
			}
			m := &months[index[r.ID]]
			m.Grid = grid
			m.Empty = len(grid) == 0
		}
		for _, id := range missing {
			s.remember(ctx, &months[index[id]])
		}
	}

	return &RosterView{Previous: months[0], Current: months[1], Next: months[2]}, nil
}

func (s *RosterService) cached(ctx context.Context, id string) (*RosterMonth, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, rosterCachePrefix+id)
	if err != nil {
		if !errors.Is(err, database.ErrCacheMiss) {
			s.logger.Warn("roster cache read failed", zap.String("id", id), zap.Error(err))
		}
		return nil, false
	}
	var m RosterMonth
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false
	}
	if m.Grid == nil {
		m.Grid = models.RosterGrid{}
	}
	return &m, true
}

func (s *RosterService) remember(ctx context.Context, m *RosterMonth) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, rosterCachePrefix+m.ID, string(raw), s.cacheTTL); err != nil {
		s.logger.Warn("roster cache write failed", zap.String("id", m.ID), zap.Error(err))
	}
}

// invalidate сбрасывает кэш месяца и сообщает об изменении
func (s *RosterService) invalidate(ctx context.Context, id string) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, rosterCachePrefix+id); err != nil {
			s.logger.Warn("roster cache invalidate failed", zap.String("id", id), zap.Error(err))
		}
	}
	if s.feed != nil {
		if err := s.feed.Publish(ctx, database.FeedDutyRosters); err != nil {
			s.logger.Warn("failed to publish change", zap.String("collection", database.FeedDutyRosters), zap.Error(err))
		}
	}
}

// writeCells обновляет ячейки; если месяца еще нет, создает его с этими ячейками
func (s *RosterService) writeCells(ctx context.Context, id string, cells []database.RosterCell) error {
	err := s.store.UpdateRosterCells(ctx, id, cells)
	if errors.Is(err, database.ErrNotFound) {
		grid := models.RosterGrid{}
		for _, c := range cells {
			if grid[c.Row] == nil {
				grid[c.Row] = map[string]string{}
			}
			grid[c.Row][strconv.Itoa(c.Day)] = c.Value
		}
		roster := &models.DutyRoster{ID: id}
		if err := roster.SetCells(grid); err != nil {
			return err
		}
		err = s.store.MergeRoster(ctx, roster)
	}
	if err != nil {
		return fmt.Errorf("ошибка при сохранении графика: %w", err)
	}

	s.invalidate(ctx, id)
	return nil
}

func checkCell(year int, month time.Month, row string, day int) error {
	if err := validMonth(year, month); err != nil {
		return err
	}
	if !models.IsRosterRow(row) {
		return newValidationError("неизвестная строка графика: " + row)
	}
	if day < 1 || day > daysIn(year, month) {
		return newValidationError(fmt.Sprintf("в месяце нет дня %d", day))
	}
	return nil
}

// SaveCell сохраняет значение ячейки (последняя запись побеждает)
func (s *RosterService) SaveCell(ctx context.Context, year int, month time.Month, dto SaveCellDTO) error {
	if err := validateStruct(s.validator, dto); err != nil {
		return err
	}
	if err := checkCell(year, month, dto.Row, dto.Day); err != nil {
		return err
	}

	id := models.RosterID(year, month)
	if err := s.writeCells(ctx, id, []database.RosterCell{{Row: dto.Row, Day: dto.Day, Value: strings.TrimSpace(dto.Value)}}); err != nil {
		return err
	}

	s.logger.Debug("roster cell saved", zap.String("id", id), zap.String("row", dto.Row), zap.Int("day", dto.Day))
	return nil
}

// MergeCellValue добавляет имя к значению ячейки через " / ", если его там еще нет
func MergeCellValue(current, name string) string {
	name = strings.TrimSpace(name)
	if strings.TrimSpace(current) == "" {
		return name
	}
	if strings.Contains(current, name) {
		return current
	}
	return current + " / " + name
}

// AssignStaff добавляет сотрудника в ячейку и возвращает новое значение
func (s *RosterService) AssignStaff(ctx context.Context, year int, month time.Month, dto AssignStaffDTO) (string, error) {
	if err := validateStruct(s.validator, dto); err != nil {
		return "", err
	}
	if err := checkCell(year, month, dto.Row, dto.Day); err != nil {
		return "", err
	}

	view, err := s.GetMonth(ctx, year, month)
	if err != nil {
		return "", err
	}

	value := MergeCellValue(view.Current.Value(dto.Row, dto.Day), dto.Name)
	id := models.RosterID(year, month)
	if err := s.writeCells(ctx, id, []database.RosterCell{{Row: dto.Row, Day: dto.Day, Value: value}}); err != nil {
		return "", err
	}
	return value, nil
}

// FillStandard записывает стандартную смену на все будние дни месяца.
// mapping: строка будних дней -> имена.
func (s *RosterService) FillStandard(ctx context.Context, year int, month time.Month, mapping map[string]string) (int, error) {
	if err := validMonth(year, month); err != nil {
		return 0, err
	}
	if len(mapping) == 0 {
		return 0, newValidationError("поле mapping обязательно для заполнения")
	}

	rows := make([]string, 0, len(mapping))
	for row := range mapping {
		if !models.IsWeekdayRow(row) {
			return 0, newValidationError("строка не относится к будним дням: " + row)
		}
		rows = append(rows, row)
	}
	sort.Strings(rows)

	var cells []database.RosterCell
	for day := 1; day <= daysIn(year, month); day++ {
		wd := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for _, row := range rows {
			cells = append(cells, database.RosterCell{Row: row, Day: day, Value: mapping[row]})
		}
	}

	id := models.RosterID(year, month)
	if err := s.writeCells(ctx, id, cells); err != nil {
		return 0, err
	}

	s.logger.Info("standard roster filled", zap.String("id", id), zap.Int("cells", len(cells)))
	return len(cells), nil
}

// CreateMonth создает пустой месяц или копию предыдущего; существующий месяц дает ErrConflict
func (s *RosterService) CreateMonth(ctx context.Context, year int, month time.Month, copyPrevious bool) (*RosterMonth, error) {
	if err := validMonth(year, month); err != nil {
		return nil, err
	}

	grid := models.RosterGrid{}
	if copyPrevious {
		py, pm := monthOf(year, month, -1)
		prev, err := s.store.GetRoster(ctx, models.RosterID(py, pm))
		switch {
		case err == nil:
			if grid, err = prev.Cells(); err != nil {
				return nil, err
			}
		case errors.Is(err, database.ErrNotFound):
		default:
			return nil, fmt.Errorf("ошибка при загрузке предыдущего месяца: %w", err)
		}
	}

	id := models.RosterID(year, month)
	roster := &models.DutyRoster{ID: id}
	if err := roster.SetCells(grid); err != nil {
		return nil, err
	}
	if err := s.store.CreateRoster(ctx, roster); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("ошибка при создании графика: %w", err)
	}

	s.invalidate(ctx, id)
	return &RosterMonth{ID: id, Year: year, Month: int(month), Grid: grid, Empty: len(grid) == 0}, nil
}

// StaffNames возвращает имена сотрудников по алфавиту
func (s *RosterService) StaffNames(ctx context.Context) ([]string, error) {
	staff, err := s.store.ListStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении сотрудников: %w", err)
	}
	names := make([]string, 0, len(staff))
	for _, m := range staff {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names, nil
}

// AddStaffDTO новый сотрудник
type AddStaffDTO struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"omitempty,email"`
}

// AddStaff добавляет сотрудника в список
func (s *RosterService) AddStaff(ctx context.Context, dto AddStaffDTO) (*models.StaffMember, error) {
	if err := validateStruct(s.validator, dto); err != nil {
		return nil, err
	}
	member := &models.StaffMember{
		Name:   strings.TrimSpace(dto.Name),
		Email:  strings.ToLower(strings.TrimSpace(dto.Email)),
		Active: true,
	}
	if err := s.store.CreateStaff(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// DisplayName имя сотрудника по email; без совпадения локальная часть email с заглавной буквы
func (s *RosterService) DisplayName(ctx context.Context, email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}

	if staff, err := s.store.ListStaff(ctx); err == nil {
		for _, m := range staff {
			if strings.EqualFold(m.Email, email) {
				return m.Name
			}
		}
	}

	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}
	if local == "" {
		return ""
	}
	runes := []rune(local)
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}
