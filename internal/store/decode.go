package store

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kamazee/vcutil/pkg/models"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

type family int

const (
	familyUnknown family = iota
	familyText
	familyIntegral
	familyDecimal
	familyDate
	familyDateTime
	familyBinary
	familyBool
)

// families maps driver column type names (sql.ColumnType.DatabaseTypeName)
// to value categories. Both the MySQL and pgx drivers report upper case.
var families = map[string]family{
	"TINYINT": familyIntegral, "SMALLINT": familyIntegral, "MEDIUMINT": familyIntegral,
	"INT": familyIntegral, "INTEGER": familyIntegral, "BIGINT": familyIntegral, "YEAR": familyIntegral,
	"INT2": familyIntegral, "INT4": familyIntegral, "INT8": familyIntegral, "OID": familyIntegral,

	"DECIMAL": familyDecimal, "NUMERIC": familyDecimal, "FLOAT": familyDecimal, "DOUBLE": familyDecimal,
	"REAL": familyDecimal, "FLOAT4": familyDecimal, "FLOAT8": familyDecimal,

	"DATE": familyDate,

	"DATETIME": familyDateTime, "TIMESTAMP": familyDateTime, "TIMESTAMPTZ": familyDateTime,

	"CHAR": familyText, "VARCHAR": familyText, "TEXT": familyText, "TINYTEXT": familyText,
	"MEDIUMTEXT": familyText, "LONGTEXT": familyText, "ENUM": familyText, "SET": familyText,
	"JSON": familyText, "JSONB": familyText, "BPCHAR": familyText, "NAME": familyText,
	"UUID": familyText, "TIME": familyText, "TIMETZ": familyText, "INTERVAL": familyText,
	"XML": familyText, "CITEXT": familyText, "INET": familyText, "CIDR": familyText,

	"BINARY": familyBinary, "VARBINARY": familyBinary, "BLOB": familyBinary, "TINYBLOB": familyBinary,
	"MEDIUMBLOB": familyBinary, "LONGBLOB": familyBinary, "BYTEA": familyBinary, "BIT": familyBinary,

	"BOOL": familyBool,
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
}

// Decode converts a raw driver value of the given column type into a typed
// value. A nil raw value is always absent. A non-nil value that cannot be
// read as its column's category is an unexpected_absent error rather than
// silently becoming NULL.
func Decode(dbType string, raw any) (models.Value, error) {
	if raw == nil {
		return models.Null(), nil
	}
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(dbType)), "UNSIGNED ")

	fam, ok := families[name]
	if !ok {
		return models.Value{}, vcerrors.Newf(vcerrors.ErrorTypeUnsupportedValue,
			"column type %s cannot be exported", dbType).WithDetail("type", dbType)
	}

	var (
		v   models.Value
		err error
	)
	switch fam {
	case familyText:
		v, err = decodeText(raw)
	case familyIntegral:
		v, err = decodeIntegral(raw)
	case familyDecimal:
		v, err = decodeDecimal(raw)
	case familyDate:
		v, err = decodeTemporal(raw, true)
	case familyDateTime:
		v, err = decodeTemporal(raw, false)
	case familyBinary:
		v, err = decodeBinary(raw)
	case familyBool:
		v, err = decodeBool(raw)
	}
	if err != nil {
		return models.Value{}, vcerrors.Wrap(err, vcerrors.ErrorTypeUnexpectedAbsent,
			"non-null value could not be decoded").
			WithDetail("type", dbType).
			WithDetail("go_type", goType(raw))
	}
	return v, nil
}

func decodeText(raw any) (models.Value, error) {
	switch x := raw.(type) {
	case string:
		return models.String(x), nil
	case []byte:
		return models.String(string(x)), nil
	case time.Time:
		return models.String(x.Format("15:04:05.999999")), nil
	case bool, int64, float64:
		return models.String(toString(x)), nil
	}
	return models.Value{}, errUnreadable
}

func decodeIntegral(raw any) (models.Value, error) {
	switch x := raw.(type) {
	case int64:
		return models.Int(x), nil
	case int32:
		return models.Int(int64(x)), nil
	case int16:
		return models.Int(int64(x)), nil
	case int8:
		return models.Int(int64(x)), nil
	case int:
		return models.Int(int64(x)), nil
	case uint64:
		return models.IntText(strconv.FormatUint(x, 10))
	case uint32:
		return models.Int(int64(x)), nil
	case []byte:
		return models.IntText(string(x))
	case string:
		return models.IntText(x)
	}
	return models.Value{}, errUnreadable
}

func decodeDecimal(raw any) (models.Value, error) {
	switch x := raw.(type) {
	case []byte:
		return models.DecText(string(x))
	case string:
		return models.DecText(x)
	case int64:
		return models.Dec(decimal.NewFromInt(x)), nil
	case float64:
		return floatDecimal(x, 64)
	case float32:
		return floatDecimal(float64(x), 32)
	}
	return models.Value{}, errUnreadable
}

func floatDecimal(f float64, bits int) (models.Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return models.Value{}, errUnreadable
	}
	return models.DecText(strconv.FormatFloat(f, 'f', -1, bits))
}

func decodeTemporal(raw any, dateOnly bool) (models.Value, error) {
	var t time.Time
	switch x := raw.(type) {
	case time.Time:
		if x.IsZero() {
			if dateOnly {
				return models.ZeroDate("0000-00-00"), nil
			}
			return models.ZeroDate("0000-00-00 00:00:00"), nil
		}
		t = x
	case []byte, string:
		s := toString(x)
		if models.IsZeroDateLiteral(s) {
			return models.ZeroDate(s), nil
		}
		parsed, err := parseTemporal(s, dateOnly)
		if err != nil {
			return models.Value{}, err
		}
		t = parsed
	default:
		return models.Value{}, errUnreadable
	}
	if dateOnly {
		return models.DateOf(t), nil
	}
	return models.DateTimeOf(t), nil
}

func parseTemporal(s string, dateOnly bool) (time.Time, error) {
	if dateOnly {
		return time.Parse(time.DateOnly, s)
	}
	var firstErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func decodeBinary(raw any) (models.Value, error) {
	switch x := raw.(type) {
	case []byte:
		b := make([]byte, len(x))
		copy(b, x)
		return models.Bytes(b), nil
	case string:
		return models.Bytes([]byte(x)), nil
	}
	return models.Value{}, errUnreadable
}

func decodeBool(raw any) (models.Value, error) {
	switch x := raw.(type) {
	case bool:
		if x {
			return models.Int(1), nil
		}
		return models.Int(0), nil
	case int64:
		return models.Int(x), nil
	case []byte, string:
		switch strings.ToLower(toString(x)) {
		case "t", "true", "1":
			return models.Int(1), nil
		case "f", "false", "0":
			return models.Int(0), nil
		}
	}
	return models.Value{}, errUnreadable
}

func toString(raw any) string {
	switch x := raw.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}
