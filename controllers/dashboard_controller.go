package controllers

import (
	"cobranca/services"
	"cobranca/utils"
	"net/http"
	"time"
)

// DashboardController отдает дашборд по запросу и через WebSocket
type DashboardController struct {
	dashboard *services.DashboardService
	hub       *DashboardHub
	loc       *time.Location
}

// NewDashboardController создает новый экземпляр DashboardController
func NewDashboardController(dashboard *services.DashboardService, hub *DashboardHub, loc *time.Location) *DashboardController {
	return &DashboardController{dashboard: dashboard, hub: hub, loc: loc}
}

// parseFilter читает start и end (dd/mm/yyyy или yyyy-mm-dd)
func (c *DashboardController) parseFilter(r *http.Request) (services.DashboardFilter, bool) {
	var filter services.DashboardFilter
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start", &filter.Start}, {"end", &filter.End}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		t, err := utils.ParseDateBR(raw, c.loc)
		if err != nil {
			return filter, false
		}
		*p.dst = &t
	}
	return filter, true
}

// Get считает дашборд с фильтром по периоду
func (c *DashboardController) Get(w http.ResponseWriter, r *http.Request) {
	filter, ok := c.parseFilter(r)
	if !ok {
		http.Error(w, "неверный формат даты", http.StatusBadRequest)
		return
	}

	if filter.Start == nil && filter.End == nil {
		if snapshot := c.dashboard.Snapshot(); snapshot != nil {
			writeJSON(w, http.StatusOK, snapshot)
			return
		}
	}
	writeJSON(w, http.StatusOK, c.dashboard.Compute(filter))
}

// Stream переводит соединение на WebSocket и шлет каждый пересчет дашборда
func (c *DashboardController) Stream(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	c.hub.ServeWS(w, r, user.ID)
}
