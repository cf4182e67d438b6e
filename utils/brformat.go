package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayoutBR формат дат в таблицах и выгрузках (dd/mm/yyyy)
const DateLayoutBR = "02/01/2006"

var ErrInvalidDate = errors.New("неверный формат даты")

// OnlyDigits оставляет в строке только цифры
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone приводит телефон к 11 цифрам (DDD + 9 + номер).
// Код страны 55 отбрасывается, для 10-значных номеров после DDD вставляется девятка.
func NormalizePhone(raw string) string {
	digits := OnlyDigits(raw)
	if (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	for len(digits) > 10 && digits[0] == '0' {
		digits = digits[1:]
	}
	if len(digits) == 10 {
		digits = digits[:2] + "9" + digits[2:]
	}
	return digits
}

// ParseAmount разбирает сумму вида "R$ 1.234,56", "1234,56" или "1234.56".
// Пустая строка дает ноль.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if s == "" {
		return decimal.Zero, nil
	}

	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") == 1:
		// "1234.56" - десятичная точка, "1.234" - разделитель тысяч
		if idx := strings.IndexByte(s, '.'); len(s)-idx-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	default:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("неверный формат суммы %q: %w", raw, err)
	}
	return d, nil
}

// FormatBRL форматирует сумму как "R$ 1.234,56"
func FormatBRL(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "R$ " + b.String() + "," + frac
}

// ParseDateBR разбирает дату dd/mm/yyyy (допускается d/m/yyyy) или ISO yyyy-mm-dd
func ParseDateBR(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, ErrInvalidDate
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || year < 1000 {
		return time.Time{}, ErrInvalidDate
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// FormatDateBR форматирует дату как dd/mm/yyyy, nil и нулевая дата дают "-"
func FormatDateBR(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	if loc != nil {
		return t.In(loc).Format(DateLayoutBR)
	}
	return t.Format(DateLayoutBR)
}

// StartOfDay возвращает полночь дня t в часовом поясе loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween считает число календарных дней от from до to в часовом поясе loc
func DaysBetween(from, to time.Time, loc *time.Location) int {
	f := from.In(loc)
	t := to.In(loc)
	fu := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	tu := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(tu.Sub(fu).Hours() / 24)
}
