package controllers

import (
	"cobranca/services"
	"net/http"
)

// LegalController обрабатывает запросы юридического календаря
type LegalController struct {
	legal *services.LegalService
}

// NewLegalController создает новый экземпляр LegalController
func NewLegalController(legal *services.LegalService) *LegalController {
	return &LegalController{legal: legal}
}

// CreateAppointment сохраняет юридическое действие
func (c *LegalController) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var dto services.CreateAppointmentDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	appointment, err := c.legal.Create(r.Context(), dto, user.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointment)
}

// Calendar возвращает действия месяца по дням
func (c *LegalController) Calendar(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(r)
	if !ok {
		http.Error(w, "Invalid month", http.StatusBadRequest)
		return
	}

	calendar, err := c.legal.Calendar(r.Context(), year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calendar)
}
