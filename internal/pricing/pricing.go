// Package pricing computes the charge amount and the installment plans offered for it.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/gsPatrick/nutri-lp/internal"
)

const (
	// MaxInstallmentCap is the largest installment count ever offered.
	MaxInstallmentCap = 6
)

var (
	// MinCharge is the smallest amount the gateway accepts for a single charge.
	MinCharge = decimal.RequireFromString("5.00")
	// MinPerInstallment bounds how small one installment may get.
	MinPerInstallment = decimal.RequireFromString("5.00")
	// DefaultPrice is used when no product price is configured or it cannot be parsed.
	DefaultPrice = decimal.RequireFromString("289.00")
)

var ErrInvalidPrice = errors.New("invalid price")

// ParsePrice accepts "289.00", "289,00", "1.289,00" and "1,289.00".
// When both separators appear the rightmost one is the decimal separator.
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidPrice
	}

	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		// only the last comma can be the decimal separator
		s = strings.ReplaceAll(s[:comma], ",", "") + "." + s[comma+1:]
	case dot >= 0 && strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s[:dot], ".", "") + s[dot:]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	return d, nil
}

// BasePrice parses the configured product price, falling back to DefaultPrice.
func BasePrice(configured string) decimal.Decimal {
	d, err := ParsePrice(configured)
	if err != nil {
		return DefaultPrice
	}
	return d.Round(2)
}

// ComputePrice returns max(MinCharge, override) when an override is given, else base.
func ComputePrice(base decimal.Decimal, override *decimal.Decimal) decimal.Decimal {
	if override != nil {
		return decimal.Max(MinCharge, *override).Round(2)
	}
	return base
}

// ValidateCharge rejects amounts below MinCharge.
func ValidateCharge(price decimal.Decimal) *apperrors.AppError {
	if price.LessThan(MinCharge) {
		return apperrors.NewValidationFieldError("price",
			fmt.Sprintf("price must be at least %s", MinCharge.StringFixed(2)),
			apperrors.ErrCodePriceTooLow)
	}
	return nil
}

// MaxInstallments is min(floor(price/5), 6) and never less than 1.
func MaxInstallments(price decimal.Decimal) int {
	return MaxInstallmentsWith(price, MinPerInstallment, MaxInstallmentCap)
}

func MaxInstallmentsWith(price, minPerInstallment decimal.Decimal, hardCap int) int {
	if hardCap < 1 {
		hardCap = 1
	}
	if !minPerInstallment.IsPositive() {
		return hardCap
	}
	n := int(price.Div(minPerInstallment).Floor().IntPart())
	if n > hardCap {
		n = hardCap
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ValidateInstallments rejects counts above max and clamps anything below 1 up to 1.
func ValidateInstallments(requested, max int) (int, *apperrors.AppError) {
	if requested > max {
		return 0, apperrors.NewValidationFieldError("installments",
			fmt.Sprintf("installments must not exceed %d", max),
			apperrors.ErrCodeInstallmentsExceeded)
	}
	if requested < 1 {
		return 1, nil
	}
	return requested, nil
}

// InstallmentValue is total/count rounded to cents. The rounding remainder is not redistributed.
func InstallmentValue(total decimal.Decimal, count int) decimal.Decimal {
	if count <= 1 {
		return total.Round(2)
	}
	return total.Div(decimal.NewFromInt(int64(count))).Round(2)
}

type Option struct {
	Installments int             `json:"installments"`
	Value        decimal.Decimal `json:"value"`
	Label        string          `json:"label"`
}

// Options lists one plan per installment count from 1 to MaxInstallments(price).
func Options(price decimal.Decimal) []Option {
	max := MaxInstallments(price)
	opts := make([]Option, 0, max)
	for n := 1; n <= max; n++ {
		value := InstallmentValue(price, n)
		label := fmt.Sprintf("%dx de R$ %s sem juros", n, FormatBRL(value))
		if n == 1 {
			label = fmt.Sprintf("1x de R$ %s (à vista)", FormatBRL(value))
		}
		opts = append(opts, Option{Installments: n, Value: value, Label: label})
	}
	return opts
}

// FormatBRL renders 1289.5 as "1.289,50".
func FormatBRL(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}
