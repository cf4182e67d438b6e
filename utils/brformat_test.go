package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"(11) 9876-5432":     "11998765432",
		"11 98765-4321":      "11987654321",
		"+55 (21) 3456-7890": "21934567890",
		"5521987654321":      "21987654321",
		"021 98765-4321":     "21987654321",
		"":                   "",
		"12345":              "12345",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizePhone(raw), raw)
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"R$ 1.234,56":      "1234.56",
		"R$\u00a01.234,56": "1234.56",
		" R$ 150,00 ":      "150",
		"1234,56":          "1234.56",
		"1234.56":          "1234.56",
		"1.234":            "1234",
		"1.234.567":        "1234567",
		"R$150":            "150",
		"":                 "0",
	}
	for raw, want := range cases {
		got, err := ParseAmount(raw)
		require.NoError(t, err, raw)
		assert.True(t, decimal.RequireFromString(want).Equal(got), "%s: got %s", raw, got)
	}

	_, err := ParseAmount("abc")
	assert.Error(t, err)
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 1.234,56", FormatBRL(decimal.RequireFromString("1234.56")))
	assert.Equal(t, "R$ 0,00", FormatBRL(decimal.Zero))
	assert.Equal(t, "R$ 999,90", FormatBRL(decimal.RequireFromString("999.9")))
	assert.Equal(t, "R$ 1.000.000,00", FormatBRL(decimal.RequireFromString("1000000")))
	assert.Equal(t, "-R$ 10,00", FormatBRL(decimal.RequireFromString("-10")))
}

func TestParseDateBR(t *testing.T) {
	d, err := ParseDateBR("05/03/2024", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDateBR("5/3/2024", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Day())

	d, err = ParseDateBR("2024-03-05", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.March, d.Month())

	for _, bad := range []string{"", "31/02/2024", "2024/03/05", "aa/bb/cccc", "05/03"} {
		_, err := ParseDateBR(bad, time.UTC)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestDaysBetween(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	due := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	now := time.Date(2024, 2, 5, 23, 30, 0, 0, loc)
	assert.Equal(t, 35, DaysBetween(due, now, loc))

	// 01:00 UTC is still the previous evening in São Paulo
	utcNow := time.Date(2024, 2, 6, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 35, DaysBetween(due, utcNow, loc))
}
