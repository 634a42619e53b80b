// Package codec converts typed field values into the textual record format
// written to destinations, and parses that format back.
//
// Format rules, one per category:
//
//	text           "quoted", inner quotes doubled
//	integral       42
//	decimal        12.3400   (scale preserved)
//	date           "2020-01-31"
//	datetime       "2020-01-31 23:59:59"  (sub-seconds truncated)
//	zero date      "0000-00-00 00:00:00"  (literal passed through)
//	absent         NULL
//	binary         0xA1FF    (uppercase hex)
//
// Records are comma-joined fields terminated by a single newline. The header
// line holds the column names, quoted like text.
package codec

import (
	"strconv"

	"github.com/kamazee/vcutil/pkg/models"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

const (
	// NullMarker is written for absent values. It is never quoted, so it
	// cannot be confused with the text "NULL".
	NullMarker = "NULL"
	// BinaryMarker prefixes hexadecimal binary values.
	BinaryMarker = "0x"

	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
	quote          = '"'
)

const upperHex = "0123456789ABCDEF"

// AppendValue appends the serialized form of v to dst.
func AppendValue(dst []byte, v models.Value) ([]byte, error) {
	switch v.Category {
	case models.Absent:
		return append(dst, NullMarker...), nil
	case models.Text:
		return appendQuoted(dst, v.Str), nil
	case models.Integral:
		if v.Str != "" {
			return append(dst, v.Str...), nil
		}
		return strconv.AppendInt(dst, v.Int, 10), nil
	case models.Decimal:
		return append(dst, decimalText(v)...), nil
	case models.Date:
		dst = append(dst, quote)
		dst = v.Time.AppendFormat(dst, dateLayout)
		return append(dst, quote), nil
	case models.DateTime:
		dst = append(dst, quote)
		dst = v.Time.AppendFormat(dst, dateTimeLayout)
		return append(dst, quote), nil
	case models.ZeroDateTime:
		return appendQuoted(dst, v.Str), nil
	case models.Binary:
		dst = append(dst, BinaryMarker...)
		for _, b := range v.Bytes {
			dst = append(dst, upperHex[b>>4], upperHex[b&0x0f])
		}
		return dst, nil
	default:
		return dst, vcerrors.Newf(vcerrors.ErrorTypeUnsupportedValue,
			"cannot serialize value of category %s", v.Category)
	}
}

// Serialize returns the serialized form of v.
func Serialize(v models.Value) (string, error) {
	b, err := AppendValue(nil, v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// AppendRecord appends a full newline-terminated record to dst. On error dst
// is returned unchanged so no partial record can leak into the output.
func AppendRecord(dst []byte, row []models.Value) ([]byte, error) {
	start := len(dst)
	var err error
	for i, v := range row {
		if i > 0 {
			dst = append(dst, ',')
		}
		if dst, err = AppendValue(dst, v); err != nil {
			return dst[:start], vcerrors.Wrap(err, vcerrors.ErrorTypeUnsupportedValue, "cannot serialize row").
				WithDetail("field", i)
		}
	}
	return append(dst, '\n'), nil
}

// AppendHeader appends the column names, quoted like text, followed by a
// newline.
func AppendHeader(dst []byte, columns []string) []byte {
	for i, c := range columns {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendQuoted(dst, c)
	}
	return append(dst, '\n')
}

func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, quote)
	for i := 0; i < len(s); i++ {
		if s[i] == quote {
			dst = append(dst, quote)
		}
		dst = append(dst, s[i])
	}
	return append(dst, quote)
}

func decimalText(v models.Value) string {
	if exp := v.Dec.Exponent(); exp < 0 {
		return v.Dec.StringFixed(-exp)
	}
	return v.Dec.String()
}
