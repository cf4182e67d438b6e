package services

import (
	"bytes"
	"cobranca/models"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const mariaRow = "Maria Silva\tMaria@X.com\t111.111.111-11\t(11) 9876-5432\tMedicina\tBoleto\tR$ 1.234,56\t13/02/2025\t\t"

func TestParseImport(t *testing.T) {
	text := strings.Join([]string{
		mariaRow,
		"",
		"só\tduas",
		"\tsem@nome.com\t1\t11999999999\tDireito\tPix\t10\t01/02/2025",
		"Pedro\tp@x.com\t2\t11999999999\tDireito\tPix\t10\t31/02/2025",
		"Ana\ta@x.com\t3\t11999999999\tDireito\tPix\tabc\t01/02/2025",
		"João\tj@x.com\t4\t+55 11 91234-5678\tDireito\tPix\t99,90\t2025-02-01\t05/03/2025\t10/04/2025",
	}, "\r\n")

	records, skipped := ParseImport(text, time.UTC, testNow)

	require.Len(t, records, 2)
	maria := records[0]
	assert.NotEmpty(t, maria.ID)
	// CPF и email хранятся как введены, иначе не совпадут с ключом уже загруженных записей
	assert.Equal(t, "Maria@X.com", maria.Email)
	assert.Equal(t, "111.111.111-11", maria.TaxID)
	assert.Equal(t, "11998765432", maria.Phone)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(maria.Amount))
	assert.Equal(t, time.Date(2025, time.February, 13, 0, 0, 0, 0, time.UTC), maria.DueDate)
	require.NotNil(t, maria.ThirdNoticeDate)
	assert.Equal(t, testNow, *maria.ThirdNoticeDate)
	assert.Equal(t, models.RecordStatusActive, maria.Status)

	joao := records[1]
	assert.Equal(t, "11912345678", joao.Phone)
	require.NotNil(t, joao.LegalDeadline)
	assert.Equal(t, 10, joao.LegalDeadline.Day())

	require.Len(t, skipped, 4)
	assert.Equal(t, ImportSkip{Line: 3, Reason: "poucas colunas"}, skipped[0])
	assert.Equal(t, "nome vazio", skipped[1].Reason)
	assert.Equal(t, "vencimento inválido: 31/02/2025", skipped[2].Reason)
	assert.Equal(t, ImportSkip{Line: 6, Reason: "valor inválido: abc"}, skipped[3])
}

func TestImport_StoresWithAudit(t *testing.T) {
	store := newMemoryStore()
	svc := newTestCollectionService(store)

	res, err := svc.Import(context.Background(), mariaRow+"\nx\ty", "agent@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Len(t, res.Skipped, 1)

	all, err := store.ListCollectionRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "agent@example.com", all[0].LastActor)
	entries, err := all[0].AuditEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditImport, entries[0].Kind)
}

func TestImport_GroupsWithExistingRecord(t *testing.T) {
	existing := overdue("old", "Maria Silva", "111.111.111-11", 40)
	store := newMemoryStore(existing)
	svc := newTestCollectionService(store)
	ctx := context.Background()

	_, err := svc.Import(ctx, mariaRow, "agent")
	require.NoError(t, err)
	_, err = svc.Load(ctx)
	require.NoError(t, err)

	groups := svc.Groups("")
	require.Len(t, groups, 1)
	assert.Equal(t, "111.111.111-11", groups[0].Key)
	assert.Len(t, groups[0].Courses, 2)
	assert.True(t, decimal.RequireFromString("1334.56").Equal(groups[0].TotalAmount))
}

func TestImport_NothingToStore(t *testing.T) {
	store := newMemoryStore()
	svc := newTestCollectionService(store)

	res, err := svc.Import(context.Background(), "\n\n", "agent")
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, store.records)
}

func TestImportThenExportActiveCSV(t *testing.T) {
	store := newMemoryStore()
	svc := newTestCollectionService(store)
	ctx := context.Background()

	_, err := svc.Import(ctx, mariaRow, "agent")
	require.NoError(t, err)

	loaded, err := svc.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 35, loaded[0].DaysOverdue)

	export, err := svc.ExportActiveCSV(';')
	require.NoError(t, err)
	assert.Equal(t, "Alunos_Ativos_SemStatus_20-03-2025.csv", export.Filename)
	assert.Equal(t, ContentTypeCSV, export.ContentType)

	body := string(export.Body)
	require.True(t, strings.HasPrefix(body, utf8BOM))
	lines := strings.Split(strings.TrimRight(strings.TrimPrefix(body, utf8BOM), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Telefone;Nome;Email;Valor", lines[0])
	assert.Equal(t, "11998765432;Maria Silva;Maria@X.com;R$ 1.234,56", lines[1])
}

func TestExportActiveCSV_SkipsTaggedAndCleansSeparator(t *testing.T) {
	a := overdue("a", "Silva; Maria", "1", 35)
	b := tagged(overdue("b", "Pedro", "2", 35), models.TagLinkSent, time.Hour)
	svc, _ := loadedService(t, a, b)

	export, err := svc.ExportActiveCSV(';')
	require.NoError(t, err)
	body := strings.TrimPrefix(string(export.Body), utf8BOM)
	assert.Contains(t, body, ";Silva  Maria;")
	assert.NotContains(t, body, "Pedro")

	export, err = svc.ExportActiveCSV(',')
	require.NoError(t, err)
	body = strings.TrimPrefix(string(export.Body), utf8BOM)
	assert.Contains(t, body, "Telefone,Nome,Email,Valor")
	assert.Contains(t, body, ",100.00")
}

func paidRecord(id, name, origin string, paidAt time.Time) models.CollectionRecord {
	r := overdue(id, name, id, 35)
	r.Status = models.RecordStatusPaid
	r.Payment = models.PaymentInfo{PaidAt: &paidAt, Origin: origin, RecordedBy: "agent@example.com"}
	return r
}

func TestPaymentsReport_HTML(t *testing.T) {
	store := newMemoryStore(
		paidRecord("p1", "Antigo", "Pix", testNow.AddDate(0, 0, -5)),
		paidRecord("p2", "Novo", "Cartão de crédito", testNow.AddDate(0, 0, -1)),
		overdue("a", "Ativo", "9", 35),
	)
	svc := newTestCollectionService(store)

	export, err := svc.PaymentsReport(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Relatorio_Pagamentos_3Cob_20-03-2025.xls", export.Filename)
	assert.Equal(t, ContentTypeXLS, export.ContentType)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(export.Body))

	headers := doc.FindElements("//thead/tr/th")
	require.Len(t, headers, len(PaymentsReportHeader))
	assert.Equal(t, "CLASSIFICAÇÃO DO PAGAMENTO", headers[12].Text())

	rows := doc.FindElements("//tbody/tr")
	require.Len(t, rows, 2)
	first := rows[0].SelectElements("td")
	require.Len(t, first, len(PaymentsReportHeader))
	assert.Equal(t, "Novo", first[0].Text())
	assert.Equal(t, "19/03/2025", first[10].Text())
	assert.Equal(t, models.PaymentKindCard, first[12].Text())
}

func TestPaymentsReport_XLSX(t *testing.T) {
	store := newMemoryStore(paidRecord("p1", "Maria", "pix", testNow))
	svc := newTestCollectionService(store)

	export, err := svc.PaymentsReport(context.Background(), "xlsx")
	require.NoError(t, err)
	assert.Equal(t, "Relatorio_Pagamentos_3Cob_20-03-2025.xlsx", export.Filename)

	f, err := excelize.OpenReader(bytes.NewReader(export.Body))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("Pagamentos", "A1")
	require.NoError(t, err)
	assert.Equal(t, "NOME", v)

	v, err = f.GetCellValue("Pagamentos", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Maria", v)

	v, err = f.GetCellValue("Pagamentos", "M2")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentKindPix, v)
}

func TestPaymentsReport_UnknownFormat(t *testing.T) {
	svc := newTestCollectionService(newMemoryStore())

	_, err := svc.PaymentsReport(context.Background(), "pdf")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSortPaidDesc(t *testing.T) {
	noDate := overdue("x", "Sem data", "x", 35)
	records := []models.CollectionRecord{
		noDate,
		paidRecord("a", "A", "Pix", testNow.AddDate(0, 0, -3)),
		paidRecord("b", "B", "Pix", testNow),
	}
	sortPaidDesc(records)
	assert.Equal(t, []string{"b", "a", "x"}, []string{records[0].ID, records[1].ID, records[2].ID})
}
