package services

import (
	"cobranca/models"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// DashboardInput три независимых источника дашборда
type DashboardInput struct {
	Records []models.CollectionRecord
	Legal   []models.LegalTrackRecord
	Metrics []models.DailyMetric
}

// DashboardFilter период отбора, обе границы включительно
type DashboardFilter struct {
	Start *time.Time
	End   *time.Time
}

// MonthBucket суммы за месяц MM/YYYY
type MonthBucket struct {
	Month   string  `json:"month"`
	Debited float64 `json:"debited"`
	Paid    float64 `json:"paid"`

	sortKey int
}

// DashboardKPIs основные показатели за период
type DashboardKPIs struct {
	Debited    float64 `json:"debited"`
	Paid       float64 `json:"paid"`
	Outreach   int     `json:"outreach"`
	Conversion float64 `json:"conversion"`
	Goal       int     `json:"goal"`
}

// PaymentMethodCount число платежей одним способом
type PaymentMethodCount struct {
	Method string `json:"method"`
	Count  int    `json:"count"`
}

// StageTotals суммы по стадии взыскания
type StageTotals struct {
	Stage   string  `json:"stage"`
	Debited float64 `json:"debited"`
	Paid    float64 `json:"paid"`
}

// StageConversion конверсия стадии в текущем и предыдущем периоде
type StageConversion struct {
	Stage    string  `json:"stage"`
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
}

// WeekBucket суммы по неделе месяца
type WeekBucket struct {
	Week               int     `json:"week"`
	Label              string  `json:"label"`
	CurrentDebited     float64 `json:"current_debited"`
	CurrentPaid        float64 `json:"current_paid"`
	PreviousDebited    float64 `json:"previous_debited"`
	PreviousPaid       float64 `json:"previous_paid"`
	CurrentConversion  float64 `json:"current_conversion"`
	PreviousConversion float64 `json:"previous_conversion"`
}

// ThirdNoticeSummary показатели стадии 3ª cobrança
type ThirdNoticeSummary struct {
	Debited    float64      `json:"debited"`
	Paid       float64      `json:"paid"`
	Outreach   int          `json:"outreach"`
	Conversion float64      `json:"conversion"`
	Weeks      []WeekBucket `json:"weeks"`
	Open       float64      `json:"open"`
	Recovered  float64      `json:"recovered"`
}

// Dashboard рассчитанные серии для графиков
type Dashboard struct {
	Evolution      []MonthBucket        `json:"evolution"`
	KPIs           DashboardKPIs        `json:"kpis"`
	PaymentMethods []PaymentMethodCount `json:"payment_methods"`
	Stages         []StageTotals        `json:"stages"`
	MonthOverMonth []StageConversion    `json:"month_over_month"`
	ThirdNotice    ThirdNoticeSummary   `json:"third_notice"`
	HasPrevious    bool                 `json:"has_previous"`
	ComputedAt     time.Time            `json:"computed_at"`
}

// weeksPerMonth недели 1-7, 8-14, 15-21, 22-28, 29+
const weeksPerMonth = 5

// Conversion возвращает paid/debited*100, 0 при нулевом debited
func Conversion(paid, debited float64) float64 {
	if debited <= 0 {
		return 0
	}
	return paid / debited * 100
}

// WeekOfMonth номер недели месяца по дню
func WeekOfMonth(day int) int {
	switch {
	case day <= 7:
		return 1
	case day <= 14:
		return 2
	case day <= 21:
		return 3
	case day <= 28:
		return 4
	default:
		return 5
	}
}

// isThirdNoticeStage стадии 3ª cobrança содержат цифру 3
func isThirdNoticeStage(stage string) bool {
	return strings.Contains(stage, "3")
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ComputeDashboard рассчитывает дашборд по трем источникам
func ComputeDashboard(input DashboardInput, filter DashboardFilter, loc *time.Location, now time.Time) *Dashboard {
	if loc == nil {
		loc = time.UTC
	}

	start, end := filterBounds(filter, loc)
	current := filterMetrics(input.Metrics, start, end, loc)

	var previous []models.DailyMetric
	hasPrevious := start != nil && end != nil
	if hasPrevious {
		ps := start.AddDate(0, -1, 0)
		pe := end.AddDate(0, -1, 0)
		previous = filterMetrics(input.Metrics, &ps, &pe, loc)
	}

	d := &Dashboard{
		Evolution:   monthlyEvolution(input.Metrics),
		HasPrevious: hasPrevious,
		ComputedAt:  now,
	}

	methods := map[string]int{}
	for _, m := range current {
		d.KPIs.Debited += m.Debited
		d.KPIs.Paid += m.Paid
		d.KPIs.Outreach += m.Outreach
		methods[models.PaymentKindCard] += m.PaidCard
		methods[models.PaymentKindPix] += m.PaidPix
		methods[models.PaymentKindBoleto] += m.PaidBoleto
	}

	// Платежи в реальном времени из обеих коллекций
	paidInRange := func(status models.RecordStatus, p models.PaymentInfo) bool {
		if status != models.RecordStatusPaid || p.PaidAt == nil {
			return false
		}
		if start != nil && p.PaidAt.Before(*start) {
			return false
		}
		if end != nil && p.PaidAt.After(*end) {
			return false
		}
		return true
	}
	for _, rec := range input.Records {
		if paidInRange(rec.Status, rec.Payment) {
			d.KPIs.Paid += rec.Amount.InexactFloat64()
			methods[models.ClassifyPaymentOrigin(rec.Payment.Origin)]++
		}
	}
	for _, rec := range input.Legal {
		if paidInRange(rec.Status, rec.Payment) {
			d.KPIs.Paid += rec.Amount.InexactFloat64()
			methods[models.ClassifyPaymentOrigin(rec.Payment.Origin)]++
		}
	}

	d.KPIs.Conversion = round(Conversion(d.KPIs.Paid, d.KPIs.Debited), 2)
	d.KPIs.Goal = int(math.Round(Conversion(d.KPIs.Paid, d.KPIs.Debited)))
	d.PaymentMethods = paymentMethods(methods)
	d.Stages = stageTotals(current)
	d.MonthOverMonth = monthOverMonth(current, previous)
	d.ThirdNotice = thirdNotice(current, previous)

	return d
}

// filterBounds приводит границы фильтра к началу первого и концу последнего дня
func filterBounds(filter DashboardFilter, loc *time.Location) (*time.Time, *time.Time) {
	var start, end *time.Time
	if filter.Start != nil {
		s := filter.Start.In(loc)
		s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
		start = &s
	}
	if filter.End != nil {
		e := filter.End.In(loc)
		e = time.Date(e.Year(), e.Month(), e.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), loc)
		end = &e
	}
	return start, end
}

// filterMetrics отбирает метрики за период; дата метрики считается полуднем дня
func filterMetrics(metrics []models.DailyMetric, start, end *time.Time, loc *time.Location) []models.DailyMetric {
	var out []models.DailyMetric
	for _, m := range metrics {
		d := m.Date.UTC()
		noon := time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, loc)
		if start != nil && noon.Before(*start) {
			continue
		}
		if end != nil && noon.After(*end) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// monthlyEvolution группирует все метрики по MM/YYYY в хронологическом порядке
func monthlyEvolution(metrics []models.DailyMetric) []MonthBucket {
	buckets := map[string]*MonthBucket{}
	for _, m := range metrics {
		d := m.Date.UTC()
		key := fmt.Sprintf("%02d/%04d", int(d.Month()), d.Year())
		b, ok := buckets[key]
		if !ok {
			b = &MonthBucket{Month: key, sortKey: d.Year()*100 + int(d.Month())}
			buckets[key] = b
		}
		b.Debited += m.Debited
		b.Paid += m.Paid
	}

	out := make([]MonthBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sortKey < out[j].sortKey })
	return out
}

// paymentMethods убирает нулевые способы оплаты
func paymentMethods(counts map[string]int) []PaymentMethodCount {
	out := make([]PaymentMethodCount, 0, len(counts))
	for method, n := range counts {
		if n == 0 {
			continue
		}
		out = append(out, PaymentMethodCount{Method: method, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Method < out[j].Method
	})
	return out
}

func stageName(m models.DailyMetric) string {
	if m.Stage == "" {
		return "Outros"
	}
	return strings.ReplaceAll(m.Stage, "_", " ")
}

func sumByStage(metrics []models.DailyMetric) map[string]*StageTotals {
	stages := map[string]*StageTotals{}
	for _, m := range metrics {
		name := stageName(m)
		s, ok := stages[name]
		if !ok {
			s = &StageTotals{Stage: name}
			stages[name] = s
		}
		s.Debited += m.Debited
		s.Paid += m.Paid
	}
	return stages
}

// stageTotals суммы по стадиям в алфавитном порядке
func stageTotals(metrics []models.DailyMetric) []StageTotals {
	stages := sumByStage(metrics)
	out := make([]StageTotals, 0, len(stages))
	for _, s := range stages {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// monthOverMonth конверсия стадий по объединенному списку стадий обоих периодов
func monthOverMonth(current, previous []models.DailyMetric) []StageConversion {
	cur := sumByStage(current)
	prev := sumByStage(previous)

	names := map[string]bool{}
	for name := range cur {
		names[name] = true
	}
	for name := range prev {
		names[name] = true
	}

	out := make([]StageConversion, 0, len(names))
	for name := range names {
		c := StageConversion{Stage: name}
		if s, ok := cur[name]; ok {
			c.Current = round(Conversion(s.Paid, s.Debited), 1)
		}
		if s, ok := prev[name]; ok {
			c.Previous = round(Conversion(s.Paid, s.Debited), 1)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// thirdNotice недельная динамика стадии 3ª cobrança
func thirdNotice(current, previous []models.DailyMetric) ThirdNoticeSummary {
	weeks := make([]WeekBucket, weeksPerMonth)
	for i := range weeks {
		weeks[i] = WeekBucket{Week: i + 1, Label: fmt.Sprintf("Semana %d", i+1)}
	}

	var summary ThirdNoticeSummary
	for _, m := range current {
		if !isThirdNoticeStage(m.Stage) {
			continue
		}
		summary.Debited += m.Debited
		summary.Paid += m.Paid
		summary.Outreach += m.Outreach

		w := &weeks[WeekOfMonth(m.Date.UTC().Day())-1]
		w.CurrentDebited += m.Debited
		w.CurrentPaid += m.Paid
	}
	for _, m := range previous {
		if !isThirdNoticeStage(m.Stage) {
			continue
		}
		w := &weeks[WeekOfMonth(m.Date.UTC().Day())-1]
		w.PreviousDebited += m.Debited
		w.PreviousPaid += m.Paid
	}

	for i := range weeks {
		weeks[i].CurrentConversion = round(Conversion(weeks[i].CurrentPaid, weeks[i].CurrentDebited), 1)
		weeks[i].PreviousConversion = round(Conversion(weeks[i].PreviousPaid, weeks[i].PreviousDebited), 1)
	}

	summary.Weeks = weeks
	summary.Conversion = round(Conversion(summary.Paid, summary.Debited), 2)
	summary.Open = math.Max(0, summary.Debited-summary.Paid)
	summary.Recovered = summary.Paid
	return summary
}
