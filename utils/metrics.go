package utils

import (
	"sync"
	"time"
)

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики рабочего списка
	Loads           int64
	LastLoadSize    int
	LastLoadTime    time.Time
	ExpiredTags     int64
	FailedTagClears int64
	TagsApplied     int64
	ImportedRecords int64
	SkippedRows     int64
	Payments        int64
	Exports         int64

	// Метрики ошибок
	ErrorCount     int64
	LastErrorTime  time.Time
	ErrorTypes     map[string]int64
	CriticalErrors int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics возвращает экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// NewMetrics создает отдельный набор метрик (используется в тестах)
func NewMetrics() *Metrics {
	return &Metrics{
		ErrorTypes: make(map[string]int64),
	}
}

// RecordRequest записывает метрики запроса
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()

	if failed {
		m.FailedRequests++
	}
}

// RecordLoad записывает загрузку рабочего списка
func (m *Metrics) RecordLoad(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Loads++
	m.LastLoadSize = size
	m.LastLoadTime = time.Now()
}

// RecordTagExpiry записывает результат снятия просроченной метки
func (m *Metrics) RecordTagExpiry(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.FailedTagClears++
		m.recordErrorLocked(err)
		return
	}
	m.ExpiredTags++
}

// RecordCollectionOperation записывает операцию над записями cobrança
func (m *Metrics) RecordCollectionOperation(operation string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "tag":
		m.TagsApplied += int64(count)
	case "import":
		m.ImportedRecords += int64(count)
	case "skip":
		m.SkippedRows += int64(count)
	case "payment":
		m.Payments += int64(count)
	case "export":
		m.Exports += int64(count)
	}
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErrorLocked(err)
}

func (m *Metrics) recordErrorLocked(err error) {
	m.ErrorCount++
	m.LastErrorTime = time.Now()

	errorType := "unknown"
	if err != nil {
		errorType = err.Error()
	}

	m.ErrorTypes[errorType]++
}

// RecordCriticalError записывает метрики критической ошибки
func (m *Metrics) RecordCriticalError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CriticalErrors++
	m.recordErrorLocked(err)
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errorTypes := make(map[string]int64, len(m.ErrorTypes))
	for k, v := range m.ErrorTypes {
		errorTypes[k] = v
	}

	return map[string]interface{}{
		"total_requests":    m.TotalRequests,
		"failed_requests":   m.FailedRequests,
		"average_latency":   m.AverageLatency.String(),
		"loads":             m.Loads,
		"last_load_size":    m.LastLoadSize,
		"last_load_time":    m.LastLoadTime,
		"expired_tags":      m.ExpiredTags,
		"failed_tag_clears": m.FailedTagClears,
		"tags_applied":      m.TagsApplied,
		"imported_records":  m.ImportedRecords,
		"skipped_rows":      m.SkippedRows,
		"payments":          m.Payments,
		"exports":           m.Exports,
		"error_count":       m.ErrorCount,
		"critical_errors":   m.CriticalErrors,
		"last_error_time":   m.LastErrorTime,
		"error_types":       errorTypes,
	}
}
