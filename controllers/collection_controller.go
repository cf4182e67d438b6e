package controllers

import (
	"cobranca/services"
	"net/http"
	"time"
)

// CollectionController обрабатывает запросы рабочего списка 3ª cobrança
type CollectionController struct {
	collection *services.CollectionService
}

// NewCollectionController создает новый экземпляр CollectionController
func NewCollectionController(collection *services.CollectionService) *CollectionController {
	return &CollectionController{collection: collection}
}

// GroupsResponse карточки рабочего списка
type GroupsResponse struct {
	LoadedAt time.Time                 `json:"loaded_at"`
	Count    int                       `json:"count"`
	Groups   []*services.GroupedRecord `json:"groups"`
}

// TagRequest метка для группы; пустая строка снимает метку
type TagRequest struct {
	Tag string `json:"tag"`
}

// ImportRequest строки, скопированные из таблицы
type ImportRequest struct {
	Text string `json:"text"`
}

func (c *CollectionController) groups(term string) GroupsResponse {
	groups := c.collection.Groups(term)
	return GroupsResponse{
		LoadedAt: c.collection.State().LoadedAt(),
		Count:    len(groups),
		Groups:   groups,
	}
}

// Load перечитывает рабочий список
func (c *CollectionController) Load(w http.ResponseWriter, r *http.Request) {
	if _, err := c.collection.Load(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.groups(""))
}

// RecordsResponse записи рабочего списка без группировки
type RecordsResponse struct {
	LoadedAt time.Time               `json:"loaded_at"`
	Count    int                     `json:"count"`
	Records  []services.LoadedRecord `json:"records"`
}

// Records возвращает записи рабочего списка, q фильтрует по имени, CPF или email
func (c *CollectionController) Records(w http.ResponseWriter, r *http.Request) {
	records := c.collection.State().Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, RecordsResponse{
		LoadedAt: c.collection.State().LoadedAt(),
		Count:    len(records),
		Records:  records,
	})
}

// Groups возвращает карточки, q фильтрует по имени, CPF или email
func (c *CollectionController) Groups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.groups(r.URL.Query().Get("q")))
}

// Command выполняет команду над записью
func (c *CollectionController) Command(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var cmd services.RecordCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}

	// Поля пользователя берутся только из токена
	cmd.RecordID = pathVar(r, "id")
	cmd.ActorID = user.ID
	cmd.Actor = user.Email
	cmd.IsAdmin = user.IsAdmin()

	result, err := c.collection.Dispatch(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TagGroup ставит метку на все записи персоны
func (c *CollectionController) TagGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req TagRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	group, err := c.collection.ApplyTagToGroup(r.Context(), pathVar(r, "key"), req.Tag, user.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// Import сохраняет вставленные строки
func (c *CollectionController) Import(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req ImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := c.collection.Import(r.Context(), req.Text, user.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ExportActive выгружает CSV для рассылки; separator=, меняет разделитель
func (c *CollectionController) ExportActive(w http.ResponseWriter, r *http.Request) {
	separator := ';'
	if r.URL.Query().Get("separator") == "," {
		separator = ','
	}

	export, err := c.collection.ExportActiveCSV(separator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeFile(w, export)
}

// Payments возвращает оплаченные записи, новые сверху
func (c *CollectionController) Payments(w http.ResponseWriter, r *http.Request) {
	records, err := c.collection.PaidRecords(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// PaymentsReport выгружает отчет о платежах (format=xls или xlsx)
func (c *CollectionController) PaymentsReport(w http.ResponseWriter, r *http.Request) {
	export, err := c.collection.PaymentsReport(r.Context(), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeFile(w, export)
}
