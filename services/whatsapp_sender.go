package services

import (
	"cobranca/config"
	"cobranca/models"
	"cobranca/utils"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrInvalidPhone номер не подходит для отправки в WhatsApp
var ErrInvalidPhone = errors.New("неверный номер телефона")

// watiParameter параметр шаблона
type watiParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// watiTemplateRequest запрос на отправку шаблона
type watiTemplateRequest struct {
	TemplateName  string          `json:"template_name"`
	BroadcastName string          `json:"broadcast_name"`
	Parameters    []watiParameter `json:"parameters"`
}

// watiResponse ответ API
type watiResponse struct {
	Result bool   `json:"result"`
	Info   string `json:"info"`
}

// WhatsAppSender отправляет шаблоны 3ª cobrança через WATI
type WhatsAppSender struct {
	httpClient    *resty.Client
	templateName  string
	broadcastName string
	logger        *zap.Logger
}

// NewWhatsAppSender создает клиент WATI.
// Без повторов: отправка шаблона не идемпотентна.
func NewWhatsAppSender(cfg *config.Config, logger *zap.Logger) *WhatsAppSender {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.WhatsApp.BaseURL, "/")).
		SetTimeout(15*time.Second).
		SetAuthToken(cfg.WhatsApp.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WhatsAppSender{
		httpClient:    client,
		templateName:  cfg.WhatsApp.TemplateName,
		broadcastName: cfg.WhatsApp.BroadcastTag,
		logger:        logger,
	}
}

// SendTemplate отправляет шаблон должнику на номер записи
func (w *WhatsAppSender) SendTemplate(ctx context.Context, record *models.CollectionRecord) error {
	phone := utils.NormalizePhone(record.Phone)
	if len(phone) != 11 {
		return fmt.Errorf("%w: %q", ErrInvalidPhone, record.Phone)
	}

	request := watiTemplateRequest{
		TemplateName:  w.templateName,
		BroadcastName: w.broadcastName,
		Parameters: []watiParameter{
			{Name: "name", Value: firstName(record.Name)},
			{Name: "curso", Value: record.Course},
			{Name: "valor", Value: utils.FormatBRL(record.Amount)},
		},
	}

	var response watiResponse
	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetQueryParam("whatsappNumber", "55"+phone).
		SetBody(request).
		SetResult(&response).
		Post("/api/v1/sendTemplateMessage")

	if err != nil {
		w.logger.Error("WATI API call failed", zap.Error(err), zap.String("record_id", record.ID))
		return fmt.Errorf("failed to call WATI API: %w", err)
	}
	if resp.IsError() {
		w.logger.Error("WATI API returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("record_id", record.ID),
		)
		return fmt.Errorf("WATI API error: status %d", resp.StatusCode())
	}
	if !response.Result {
		return fmt.Errorf("WATI API error: %s", response.Info)
	}

	w.logger.Info("template sent", zap.String("record_id", record.ID), zap.String("template", w.templateName))
	return nil
}
