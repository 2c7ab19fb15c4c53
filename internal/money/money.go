// Package money реализует тип денежной суммы с фиксированной точкой.
package money

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	currencyScale = 2
	quantityScale = 3
)

var hundred = decimal.NewFromInt(100)

// Amount представляет денежную сумму или складское количество в десятичной
// арифметике. Нулевое значение равно нулю и готово к использованию.
type Amount struct {
	d decimal.Decimal
}

// Zero возвращает нулевую сумму.
func Zero() Amount {
	return Amount{}
}

// FromFloat создаёт сумму из числа с плавающей точкой. Используется только на
// границе API.
func FromFloat(f float64) Amount {
	return Amount{d: decimal.NewFromFloat(f)}
}

// FromInt создаёт сумму из целого числа.
func FromInt(i int64) Amount {
	return Amount{d: decimal.NewFromInt(i)}
}

// Parse разбирает десятичную строку в сумму.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// MustParse разбирает десятичную строку и паникует при ошибке. Предназначен
// для констант и тестов.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add возвращает сумму a+b.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sub возвращает разность a-b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{d: a.d.Sub(b.d)}
}

// Mul возвращает произведение a*b.
func (a Amount) Mul(b Amount) Amount {
	return Amount{d: a.d.Mul(b.d)}
}

// MulInt возвращает произведение a*n.
func (a Amount) MulInt(n int64) Amount {
	return Amount{d: a.d.Mul(decimal.NewFromInt(n))}
}

// Div возвращает частное a/b.
func (a Amount) Div(b Amount) Amount {
	return Amount{d: a.d.Div(b.d)}
}

// Neg возвращает сумму с противоположным знаком.
func (a Amount) Neg() Amount {
	return Amount{d: a.d.Neg()}
}

// ClampZero возвращает max(a, 0).
func (a Amount) ClampZero() Amount {
	if a.d.IsNegative() {
		return Amount{}
	}
	return a
}

// Percent возвращает p процентов от суммы a.
func (a Amount) Percent(p Amount) Amount {
	return Amount{d: a.d.Mul(p.d).Div(hundred)}
}

// RoundCurrency округляет сумму до двух знаков после запятой.
func (a Amount) RoundCurrency() Amount {
	return Amount{d: a.d.Round(currencyScale)}
}

// RoundQuantity округляет складское количество до трёх знаков после запятой.
func (a Amount) RoundQuantity() Amount {
	return Amount{d: a.d.Round(quantityScale)}
}

// Cmp сравнивает суммы: -1 если a < b, 0 если равны, 1 если a > b.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// Equal сообщает, равны ли суммы.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// IsZero сообщает, равна ли сумма нулю.
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// IsNegative сообщает, отрицательна ли сумма.
func (a Amount) IsNegative() bool {
	return a.d.IsNegative()
}

// IsPositive сообщает, положительна ли сумма.
func (a Amount) IsPositive() bool {
	return a.d.IsPositive()
}

// Float64 возвращает приближённое значение для границы API.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

// String возвращает десятичное представление суммы.
func (a Amount) String() string {
	return a.d.String()
}

// Scan реализует sql.Scanner для чтения NUMERIC из БД.
func (a *Amount) Scan(src any) error {
	return a.d.Scan(src)
}

// Value реализует driver.Valuer для записи NUMERIC в БД.
func (a Amount) Value() (driver.Value, error) {
	return a.d.Value()
}

// MarshalJSON сериализует сумму как число без кавычек.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.d.String()), nil
}

// UnmarshalJSON принимает число или строку с числом.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		a.d = decimal.Decimal{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("unmarshal amount %q: %w", s, err)
	}
	a.d = d
	return nil
}
