package codec

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamazee/vcutil/pkg/models"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

func TestSerialize(t *testing.T) {
	when := time.Date(2020, 1, 31, 23, 59, 59, 999_999_999, time.UTC)

	tests := []struct {
		name  string
		value models.Value
		want  string
	}{
		{name: "text", value: models.String("hello"), want: `"hello"`},
		{name: "text with quotes", value: models.String(`say "hi"`), want: `"say ""hi"""`},
		{name: "empty text", value: models.String(""), want: `""`},
		{name: "multibyte text", value: models.String("żółw ✓"), want: `"żółw ✓"`},
		{name: "text with comma and newline", value: models.String("a,b\nc"), want: "\"a,b\nc\""},
		{name: "integral", value: models.Int(-42), want: "-42"},
		{name: "date", value: models.DateOf(when), want: `"2020-01-31"`},
		{name: "datetime truncates", value: models.DateTimeOf(when), want: `"2020-01-31 23:59:59"`},
		{name: "zero date", value: models.ZeroDate("0000-00-00 00:00:00"), want: `"0000-00-00 00:00:00"`},
		{name: "null", value: models.Null(), want: "NULL"},
		{name: "binary", value: models.Bytes([]byte{0xA1}), want: "0xA1"},
		{name: "binary lowercase input", value: models.Bytes([]byte{0x0f, 0xab, 0x00}), want: "0x0FAB00"},
		{name: "empty binary", value: models.Bytes(nil), want: "0x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Serialize(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerialize_DecimalKeepsScale(t *testing.T) {
	for _, in := range []string{"12.3400", "0.000001", "-7.10", "123456789012345678901234567890.123456789", "1200"} {
		v, err := models.DecText(in)
		require.NoError(t, err)
		got, err := Serialize(v)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	}
}

func TestSerialize_LargeUnsignedIntegral(t *testing.T) {
	v, err := models.IntText("18446744073709551615")
	require.NoError(t, err)
	assert.True(t, v.IntOverflow)

	got, err := Serialize(v)
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551615", got)
}

func TestSerialize_UnsupportedCategory(t *testing.T) {
	_, err := Serialize(models.Value{Category: models.Category(99)})
	require.Error(t, err)
	assert.True(t, vcerrors.IsType(err, vcerrors.ErrorTypeUnsupportedValue))
}

func TestAppendRecord_NoPartialRow(t *testing.T) {
	buf := []byte("previous\n")
	row := []models.Value{models.Int(1), models.String("x"), {Category: models.Category(99)}}

	out, err := AppendRecord(buf, row)
	require.Error(t, err)
	assert.Equal(t, "previous\n", string(out))
	assert.True(t, vcerrors.IsType(err, vcerrors.ErrorTypeUnsupportedValue))
}

func TestAppendRecord(t *testing.T) {
	row := []models.Value{models.Int(7), models.String(`a"b`), models.Null(), models.Bytes([]byte{0xde, 0xad})}
	out, err := AppendRecord(nil, row)
	require.NoError(t, err)
	assert.Equal(t, "7,\"a\"\"b\",NULL,0xDEAD\n", string(out))
}

func TestAppendHeader(t *testing.T) {
	assert.Equal(t, "\"id\",\"created_at\",\"payload\"\n", string(AppendHeader(nil, []string{"id", "created_at", "payload"})))
}

func TestAppendHeader_AwkwardNamesReadBack(t *testing.T) {
	columns := []string{"a,b", `say "x"`, "plain"}
	line := AppendHeader(nil, columns)
	assert.Equal(t, "\"a,b\",\"say \"\"x\"\"\",\"plain\"\n", string(line))

	fields, err := NewReader(strings.NewReader(string(line))).Next()
	require.NoError(t, err)
	require.Len(t, fields, len(columns))
	for i, f := range fields {
		assert.Equal(t, columns[i], f.Text)
		assert.True(t, f.Quoted)
	}
}

func TestRoundTrip(t *testing.T) {
	when := time.Date(2019, 3, 31, 2, 30, 15, 123_000_000, time.UTC)
	dec, err := decimal.NewFromString("-31415.92650")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value models.Value
		want  models.Value
	}{
		{name: "integral", value: models.Int(9_007_199_254_740_993), want: models.Int(9_007_199_254_740_993)},
		{name: "decimal", value: models.Dec(dec), want: models.Dec(dec)},
		{name: "text", value: models.String(`he said "no", then left`), want: models.String(`he said "no", then left`)},
		{name: "text that looks like null", value: models.String("NULL"), want: models.String("NULL")},
		{name: "date", value: models.DateOf(when), want: models.DateOf(when)},
		{name: "datetime", value: models.DateTimeOf(when), want: models.DateTimeOf(when.Truncate(time.Second))},
		{name: "binary", value: models.Bytes([]byte{0xA1}), want: models.Bytes([]byte{0xA1})},
		{name: "null", value: models.Null(), want: models.Null()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := AppendRecord(nil, []models.Value{tt.value})
			require.NoError(t, err)

			fields, err := SplitRecord(string(line))
			require.NoError(t, err)
			require.Len(t, fields, 1)

			want := tt.want.Category
			if want == models.Absent {
				want = models.Text
			}
			got, err := Decode(fields[0], want)
			require.NoError(t, err)

			switch tt.want.Category {
			case models.Decimal:
				assert.True(t, tt.want.Dec.Equal(got.Dec))
				assert.Equal(t, tt.want.Dec.Exponent(), got.Dec.Exponent())
			case models.Date, models.DateTime:
				assert.Equal(t, tt.want.Category, got.Category)
				assert.True(t, tt.want.Time.Equal(got.Time))
			default:
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestReader_MultipleRecords(t *testing.T) {
	input := "id,name\n1,\"multi\nline\"\n2,NULL\n"
	rd := NewReader(strings.NewReader(input))

	header, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, []Field{{Text: "id"}, {Text: "name"}}, header)

	first, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, []Field{{Text: "1"}, {Text: "multi\nline", Quoted: true}}, first)

	second, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, []Field{{Text: "2"}, {Text: "NULL"}}, second)

	_, err = rd.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_Malformed(t *testing.T) {
	for _, in := range []string{"\"open\n", "1,2", "ab\"c\"\n", "\"a\"b\n"} {
		_, err := SplitRecord(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestDecode_ZeroDate(t *testing.T) {
	v, err := Decode(Field{Text: "0000-00-00 00:00:00", Quoted: true}, models.DateTime)
	require.NoError(t, err)
	assert.Equal(t, models.ZeroDate("0000-00-00 00:00:00"), v)
}
