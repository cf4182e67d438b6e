package services

import (
	"bytes"
	"cobranca/models"
	"cobranca/utils"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/xuri/excelize/v2"
)

// Типы содержимого выгрузок
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLS  = "application/vnd.ms-excel"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// utf8BOM нужен Excel, чтобы открыть CSV в UTF-8
const utf8BOM = "\ufeff"

// PaymentsReportHeader колонки отчета о платежах
var PaymentsReportHeader = []string{
	"NOME",
	"E-MAIL",
	"CPF",
	"TELEFONE",
	"CURSO",
	"FORMA DE PG",
	"VALOR",
	"VENCIMENTO",
	"DATA 3° COB",
	"DATA 1° JUR.",
	"DATA DO PAGAMENTO",
	"RESPONSÁVEL PELO LINK",
	"CLASSIFICAÇÃO DO PAGAMENTO",
}

// activeExportHeader колонки выгрузки для рассылки
var activeExportHeader = []string{"Telefone", "Nome", "Email", "Valor"}

// Export готовый файл выгрузки
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService формирует файлы выгрузок
type ExportService struct {
	loc *time.Location
}

// NewExportService создает новый экземпляр ExportService
func NewExportService(loc *time.Location) *ExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportService{loc: loc}
}

// ActiveCSVFilename имя файла выгрузки активных записей без метки
func (e *ExportService) ActiveCSVFilename(now time.Time) string {
	return "Alunos_Ativos_SemStatus_" + now.In(e.loc).Format("02-01-2006") + ".csv"
}

// PaymentsFilename имя файла отчета о платежах с заданным расширением
func (e *ExportService) PaymentsFilename(now time.Time, ext string) string {
	return "Relatorio_Pagamentos_3Cob_" + now.In(e.loc).Format("02-01-2006") + "." + ext
}

// ActiveCSV пишет CSV с BOM; разделитель внутри значений заменяется пробелом
func (e *ExportService) ActiveCSV(records []LoadedRecord, separator rune) ([]byte, error) {
	if separator != ',' {
		separator = ';'
	}

	var buf bytes.Buffer
	buf.WriteString(utf8BOM)

	w := csv.NewWriter(&buf)
	w.Comma = separator

	if err := w.Write(activeExportHeader); err != nil {
		return nil, fmt.Errorf("ошибка при записи заголовка: %w", err)
	}

	sep := string(separator)
	clean := func(v string) string {
		return strings.ReplaceAll(v, sep, " ")
	}
	// с запятой-разделителем сумма пишется без форматирования, иначе "R$ 1.234,56"
	amount := func(rec *LoadedRecord) string {
		if separator == ',' {
			return rec.Amount.StringFixed(2)
		}
		return utils.FormatBRL(rec.Amount)
	}

	for i := range records {
		rec := &records[i]
		row := []string{
			clean(rec.Phone),
			clean(rec.Name),
			clean(rec.Email),
			clean(amount(rec)),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("ошибка при записи строки: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// paymentRow значения одной строки отчета о платежах
func (e *ExportService) paymentRow(rec *models.CollectionRecord) []string {
	due := rec.DueDate
	return []string{
		rec.Name,
		rec.Email,
		rec.TaxID,
		rec.Phone,
		rec.Course,
		rec.PaymentMethod,
		utils.FormatBRL(rec.Amount),
		utils.FormatDateBR(&due, e.loc),
		utils.FormatDateBR(rec.ThirdNoticeDate, e.loc),
		utils.FormatDateBR(rec.LegalDeadline, e.loc),
		utils.FormatDateBR(rec.Payment.PaidAt, e.loc),
		rec.Payment.RecordedBy,
		models.ClassifyPaymentOrigin(rec.Payment.Origin),
	}
}

// PaymentsHTML формирует HTML-таблицу, которую Excel открывает как .xls
func (e *ExportService) PaymentsHTML(records []models.CollectionRecord) ([]byte, error) {
	doc := etree.NewDocument()

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns:x", "urn:schemas-microsoft-com:office:excel")
	head := html.CreateElement("head")
	meta := head.CreateElement("meta")
	meta.CreateAttr("http-equiv", "Content-Type")
	meta.CreateAttr("content", "text/html; charset=utf-8")

	table := html.CreateElement("body").CreateElement("table")
	table.CreateAttr("border", "1")

	tr := table.CreateElement("thead").CreateElement("tr")
	for _, title := range PaymentsReportHeader {
		th := tr.CreateElement("th")
		th.CreateAttr("style", "background-color:#E6F3FF;font-weight:bold")
		th.SetText(title)
	}

	tbody := table.CreateElement("tbody")
	for i := range records {
		row := tbody.CreateElement("tr")
		for _, value := range e.paymentRow(&records[i]) {
			td := row.CreateElement("td")
			// CPF и телефон как текст, иначе Excel теряет ведущие нули
			td.CreateAttr("style", "mso-number-format:'\\@'")
			td.SetText(value)
		}
	}

	doc.Indent(2)

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("ошибка при формировании отчета: %w", err)
	}
	return buf.Bytes(), nil
}

// PaymentsXLSX формирует отчет о платежах в формате xlsx
func (e *ExportService) PaymentsXLSX(records []models.CollectionRecord) ([]byte, error) {
	f := excelize.NewFile()

	sheetName := "Pagamentos"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, title := range PaymentsReportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	for i := range records {
		for col, value := range e.paymentRow(&records[i]) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellStr(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

// sortPaidDesc сортирует по дате оплаты, новые сверху; без даты в конце
func sortPaidDesc(records []models.CollectionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Payment.PaidAt, records[j].Payment.PaidAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// ExportActiveCSV выгружает активные записи рабочего списка без метки
func (s *CollectionService) ExportActiveCSV(separator rune) (*Export, error) {
	var untagged []LoadedRecord
	for _, rec := range s.state.Records() {
		if rec.Status == models.RecordStatusActive && rec.Tag.Empty() {
			untagged = append(untagged, rec)
		}
	}

	body, err := s.exporter.ActiveCSV(untagged, separator)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCollectionOperation("export", len(untagged))

	return &Export{
		Filename:    s.exporter.ActiveCSVFilename(s.now()),
		ContentType: ContentTypeCSV,
		Body:        body,
	}, nil
}

// PaymentsReport формирует отчет о платежах: format "xls" (HTML) или "xlsx"
func (s *CollectionService) PaymentsReport(ctx context.Context, format string) (*Export, error) {
	records, err := s.PaidRecords(ctx)
	if err != nil {
		return nil, err
	}

	var (
		body        []byte
		contentType string
	)
	switch format {
	case "xlsx":
		body, err = s.exporter.PaymentsXLSX(records)
		contentType = ContentTypeXLSX
	case "", "xls":
		format = "xls"
		body, err = s.exporter.PaymentsHTML(records)
		contentType = ContentTypeXLS
	default:
		return nil, newValidationError("поле format должно быть одним из: xls xlsx")
	}
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCollectionOperation("export", len(records))

	return &Export{
		Filename:    s.exporter.PaymentsFilename(s.now(), format),
		ContentType: contentType,
		Body:        body,
	}, nil
}
