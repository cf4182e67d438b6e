package services

import (
	"cobranca/models"
	"strings"
	"sync"
	"time"
)

// LoadedRecord запись рабочего списка с рассчитанными днями просрочки
type LoadedRecord struct {
	models.CollectionRecord
	DaysOverdue int `json:"days_overdue"`
}

// CollectionState текущий рабочий список.
// Каждая загрузка полностью заменяет предыдущий результат.
type CollectionState struct {
	mu       sync.RWMutex
	records  []LoadedRecord
	loadedAt time.Time
}

// NewCollectionState создает пустое состояние
func NewCollectionState() *CollectionState {
	return &CollectionState{}
}

// Replace заменяет рабочий список
func (s *CollectionState) Replace(records []LoadedRecord, loadedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.loadedAt = loadedAt
}

// Records возвращает копию рабочего списка
func (s *CollectionState) Records() []LoadedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LoadedRecord, len(s.records))
	copy(out, s.records)
	return out
}

// LoadedAt время последней загрузки
func (s *CollectionState) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Members возвращает записи с данным ключом персоны
func (s *CollectionState) Members(key string) []LoadedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LoadedRecord
	for _, rec := range s.records {
		if groupKey(&rec) == key {
			out = append(out, rec)
		}
	}
	return out
}

// Update применяет fn к записи с данным ID, если она есть в рабочем списке
func (s *CollectionState) Update(id string, fn func(rec *LoadedRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			fn(&s.records[i])
			return true
		}
	}
	return false
}

// Remove убирает запись из рабочего списка
func (s *CollectionState) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i:i], s.records[i+1:]...)
			return
		}
	}
}

// Search фильтрует рабочий список по имени, CPF или email без учета регистра
func (s *CollectionState) Search(term string) []LoadedRecord {
	term = strings.ToLower(strings.TrimSpace(term))
	records := s.Records()
	if term == "" {
		return records
	}
	var out []LoadedRecord
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Name), term) ||
			strings.Contains(strings.ToLower(rec.TaxID), term) ||
			strings.Contains(strings.ToLower(rec.Email), term) {
			out = append(out, rec)
		}
	}
	return out
}
