package controllers

import (
	"cobranca/models"
	"cobranca/services"
	"net/http"
)

// RosterController обрабатывает запросы графика дежурств
type RosterController struct {
	roster *services.RosterService
}

// NewRosterController создает новый экземпляр RosterController
func NewRosterController(roster *services.RosterService) *RosterController {
	return &RosterController{roster: roster}
}

// CreateMonthRequest создание месяца
type CreateMonthRequest struct {
	CopyPrevious bool `json:"copy_previous"`
}

// FillStandardRequest стандартная смена: строка будних дней -> имена
type FillStandardRequest struct {
	Mapping map[string]string `json:"mapping"`
}

// RowsResponse строки графика
type RowsResponse struct {
	Weekday []models.RosterRow `json:"weekday"`
	Weekend []models.RosterRow `json:"weekend"`
}

// Rows возвращает описание строк графика
func (c *RosterController) Rows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RowsResponse{Weekday: models.WeekdayRows, Weekend: models.WeekendRows})
}

// GetMonth возвращает месяц с соседними
func (c *RosterController) GetMonth(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(r)
	if !ok {
		http.Error(w, "Invalid month", http.StatusBadRequest)
		return
	}

	view, err := c.roster.GetMonth(r.Context(), year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CreateMonth создает пустой месяц или копию предыдущего
func (c *RosterController) CreateMonth(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(r)
	if !ok {
		http.Error(w, "Invalid month", http.StatusBadRequest)
		return
	}

	var req CreateMonthRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := c.roster.CreateMonth(r.Context(), year, month, req.CopyPrevious)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// SaveCell сохраняет ячейку
func (c *RosterController) SaveCell(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(r)
	if !ok {
		http.Error(w, "Invalid month", http.StatusBadRequest)
		return
	}

	var dto services.SaveCellDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	if err := c.roster.SaveCell(r.Context(), year, month, dto); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignStaff добавляет сотрудника в ячейку
func (c *RosterController) AssignStaff(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(r)
	if !ok {
		http.Error(w, "Invalid month", http.StatusBadRequest)
		return
	}

	var dto services.AssignStaffDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	value, err := c.roster.AssignStaff(r.Context(), year, month, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": value})
}

// FillStandard заполняет будние дни стандартной сменой
func (c *RosterController) FillStandard(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(r)
	if !ok {
		http.Error(w, "Invalid month", http.StatusBadRequest)
		return
	}

	var req FillStandardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := c.roster.FillStandard(r.Context(), year, month, req.Mapping)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cells": n})
}

// Staff возвращает имена сотрудников
func (c *RosterController) Staff(w http.ResponseWriter, r *http.Request) {
	names, err := c.roster.StaffNames(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// AddStaff добавляет сотрудника
func (c *RosterController) AddStaff(w http.ResponseWriter, r *http.Request) {
	var dto services.AddStaffDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	member, err := c.roster.AddStaff(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}
