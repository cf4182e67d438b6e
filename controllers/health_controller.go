package controllers

import (
	"cobranca/utils"
	"context"
	"net/http"
	"time"
)

// Pinger проверка доступности зависимостей
type Pinger func(ctx context.Context) error

// HealthController отдает состояние сервиса и метрики
type HealthController struct {
	metrics *utils.Metrics
	checks  map[string]Pinger
}

// NewHealthController создает новый экземпляр HealthController
func NewHealthController(metrics *utils.Metrics, checks map[string]Pinger) *HealthController {
	return &HealthController{metrics: metrics, checks: checks}
}

// Health проверяет зависимости; при любой ошибке 503
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	result := map[string]string{"status": "ok"}
	for name, check := range c.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			result["status"] = "degraded"
			result[name] = err.Error()
			continue
		}
		result[name] = "ok"
	}
	writeJSON(w, status, result)
}

// Metrics возвращает снимок метрик
func (c *HealthController) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.metrics.GetMetricsSnapshot())
}
