package controllers

import (
	"cobranca/database"
	"cobranca/middleware"
	"cobranca/models"
	"cobranca/services"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// currentUser пользователь запроса, установленный AuthMiddleware
type currentUser struct {
	ID    uint
	Email string
	Role  string
}

func (u currentUser) IsAdmin() bool {
	return u.Role == models.RoleAdmin
}

func userFromRequest(r *http.Request) (currentUser, bool) {
	id, email, role, err := middleware.GetUserFromContext(r)
	if err != nil {
		return currentUser{}, false
	}
	return currentUser{ID: id, Email: email, Role: role}, true
}

// writeJSON отправляет ответ в формате JSON
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError переводит ошибку сервиса в HTTP статус
func writeError(w http.ResponseWriter, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrUnknownTag):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, "запись не найдена", http.StatusNotFound)
	case errors.Is(err, services.ErrUserExists), errors.Is(err, database.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeFile отдает выгрузку как вложение
func writeFile(w http.ResponseWriter, export *services.Export) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(export.Body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// pathVar раскодированная переменная пути (маршрутизатор сопоставляет закодированный путь)
func pathVar(r *http.Request, name string) string {
	raw := mux.Vars(r)[name]
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// yearMonth разбирает {year} и {month} из пути
func yearMonth(r *http.Request) (int, time.Month, bool) {
	vars := mux.Vars(r)
	year, err := strconv.Atoi(vars["year"])
	if err != nil {
		return 0, 0, false
	}
	month, err := strconv.Atoi(vars["month"])
	if err != nil {
		return 0, 0, false
	}
	return year, time.Month(month), true
}
