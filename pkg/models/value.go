// Package models defines the typed field values that flow from the store,
// through the serializer, into destination files.
//
// A Value is a tagged variant: exactly one payload field is meaningful for a
// given Category. Absence is a category of its own rather than a nil pointer,
// so code that consumes values can never confuse "no value" with a zero value.
package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Category identifies which payload a Value carries.
type Category int

const (
	// Absent is the SQL NULL.
	Absent Category = iota
	// Text is character data, kept as the raw bytes delivered by the store.
	Text
	// Integral is a whole number of arbitrary width, kept as decimal digits.
	Integral
	// Decimal is an exact decimal number.
	Decimal
	// Date is a calendar date without a time component.
	Date
	// DateTime is a wall-clock date and time.
	DateTime
	// Binary is raw bytes.
	Binary
	// ZeroDateTime is the historical all-zero date literal some stores allow
	// in date columns. It is neither NULL nor a valid calendar instant.
	ZeroDateTime
)

var categoryNames = map[Category]string{
	Absent:       "absent",
	Text:         "text",
	Integral:     "integral",
	Decimal:      "decimal",
	Date:         "date",
	DateTime:     "datetime",
	Binary:       "binary",
	ZeroDateTime: "zero_datetime",
}

// String implements fmt.Stringer.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "category(" + strconv.Itoa(int(c)) + ")"
}

// IsTemporal reports whether values of this category carry a calendar instant.
func (c Category) IsTemporal() bool {
	return c == Date || c == DateTime
}

// Value is a single typed field value.
type Value struct {
	Category Category

	// Str holds Text bytes, Integral digits, or the ZeroDateTime literal.
	Str string
	// Int mirrors Integral digits when they fit in an int64.
	Int int64
	// IntOverflow is set when Integral digits do not fit in an int64.
	IntOverflow bool
	// Time holds Date and DateTime values as naive wall-clock time in UTC.
	Time time.Time
	// Dec holds Decimal values.
	Dec decimal.Decimal
	// Bytes holds Binary values.
	Bytes []byte
}

// Null returns the absent value.
func Null() Value { return Value{Category: Absent} }

// String returns a Text value.
func String(s string) Value { return Value{Category: Text, Str: s} }

// Int returns an Integral value.
func Int(n int64) Value {
	return Value{Category: Integral, Str: strconv.FormatInt(n, 10), Int: n}
}

// IntText returns an Integral value from its decimal digits. Digits outside the
// int64 range are kept verbatim and flagged with IntOverflow.
func IntText(digits string) (Value, error) {
	if n, err := strconv.ParseInt(digits, 10, 64); err == nil {
		return Int(n), nil
	}
	if _, err := strconv.ParseUint(digits, 10, 64); err == nil {
		return Value{Category: Integral, Str: digits, IntOverflow: true}, nil
	}
	return Value{}, fmt.Errorf("invalid integral value %q", digits)
}

// Dec returns a Decimal value.
func Dec(d decimal.Decimal) Value { return Value{Category: Decimal, Dec: d} }

// DecText returns a Decimal value parsed from its textual form.
func DecText(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, fmt.Errorf("invalid decimal value %q: %w", s, err)
	}
	return Dec(d), nil
}

// DateOf returns a Date value; the time of day is discarded.
func DateOf(t time.Time) Value {
	y, m, d := t.Date()
	return Value{Category: Date, Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateTimeOf returns a DateTime value, keeping t's wall clock and dropping its location.
func DateTimeOf(t time.Time) Value {
	return Value{Category: DateTime, Time: Naive(t)}
}

// Bytes returns a Binary value.
func Bytes(b []byte) Value { return Value{Category: Binary, Bytes: b} }

// ZeroDate returns the zero-date sentinel carrying its literal text.
func ZeroDate(literal string) Value { return Value{Category: ZeroDateTime, Str: literal} }

// IsNull reports whether v is absent.
func (v Value) IsNull() bool { return v.Category == Absent }

// Naive re-expresses t's wall clock in UTC so that comparisons and arithmetic
// ignore the location t was delivered in.
func Naive(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}

// IsZeroDateLiteral reports whether s is an all-zero date or date/time
// literal such as "0000-00-00" or "0000-00-00 00:00:00".
func IsZeroDateLiteral(s string) bool {
	if len(s) < len("0000-00-00") || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0', '-', ':', ' ', '.':
		default:
			return false
		}
	}
	return true
}

// GoString renders v for test failure messages and debug logs.
func (v Value) GoString() string {
	switch v.Category {
	case Absent:
		return "NULL"
	case Text, Integral, ZeroDateTime:
		return fmt.Sprintf("%s(%q)", v.Category, v.Str)
	case Decimal:
		return fmt.Sprintf("decimal(%s)", v.Dec.String())
	case Date:
		return "date(" + v.Time.Format("2006-01-02") + ")"
	case DateTime:
		return "datetime(" + v.Time.Format("2006-01-02 15:04:05.999999999") + ")"
	case Binary:
		return fmt.Sprintf("binary(%X)", v.Bytes)
	default:
		return v.Category.String()
	}
}
