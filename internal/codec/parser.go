package codec

import (
	"bufio"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/kamazee/vcutil/pkg/models"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// Field is one raw field of a parsed record.
type Field struct {
	// Text is the field with quoting removed.
	Text string
	// Quoted records whether the field was quoted in the file.
	Quoted bool
}

// Reader reads records written by AppendRecord. Quoted text may span lines.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a record reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next record, or io.EOF when the input is exhausted.
func (rd *Reader) Next() ([]Field, error) {
	var (
		fields  []Field
		cur     strings.Builder
		quoted  bool
		inQuote bool
		started bool
	)
	flush := func() {
		fields = append(fields, Field{Text: cur.String(), Quoted: quoted})
		cur.Reset()
		quoted = false
	}

	for {
		c, err := rd.r.ReadByte()
		if errors.Is(err, io.EOF) {
			if inQuote {
				return nil, vcerrors.New(vcerrors.ErrorTypeValidation, "unterminated quoted field")
			}
			if !started {
				return nil, io.EOF
			}
			return nil, vcerrors.New(vcerrors.ErrorTypeValidation, "record is missing its newline")
		}
		if err != nil {
			return nil, err
		}
		started = true

		if inQuote {
			if c != quote {
				cur.WriteByte(c)
				continue
			}
			peek, perr := rd.r.Peek(1)
			if perr == nil && peek[0] == quote {
				_, _ = rd.r.ReadByte()
				cur.WriteByte(quote)
				continue
			}
			inQuote = false
			continue
		}

		switch c {
		case quote:
			if cur.Len() > 0 || quoted {
				return nil, vcerrors.New(vcerrors.ErrorTypeValidation, "quote inside unquoted field")
			}
			inQuote = true
			quoted = true
		case ',':
			flush()
		case '\n':
			flush()
			return fields, nil
		default:
			if quoted {
				return nil, vcerrors.New(vcerrors.ErrorTypeValidation, "data after closing quote")
			}
			cur.WriteByte(c)
		}
	}
}

// SplitRecord parses a single newline-terminated record.
func SplitRecord(line string) ([]Field, error) {
	return NewReader(strings.NewReader(line)).Next()
}

// Decode parses a field back into a value of the expected category. The
// format is not self-describing for quoted fields, so the caller names the
// category it expects.
func Decode(f Field, want models.Category) (models.Value, error) {
	if !f.Quoted && f.Text == NullMarker {
		return models.Null(), nil
	}

	switch want {
	case models.Text:
		if !f.Quoted {
			return models.Value{}, decodeErr(f, want)
		}
		return models.String(f.Text), nil
	case models.Integral:
		if f.Quoted {
			return models.Value{}, decodeErr(f, want)
		}
		return models.IntText(f.Text)
	case models.Decimal:
		if f.Quoted {
			return models.Value{}, decodeErr(f, want)
		}
		return models.DecText(f.Text)
	case models.Date:
		if !f.Quoted {
			return models.Value{}, decodeErr(f, want)
		}
		t, err := time.Parse(dateLayout, f.Text)
		if err != nil {
			return models.Value{}, vcerrors.Wrap(err, vcerrors.ErrorTypeValidation, "invalid date")
		}
		return models.DateOf(t), nil
	case models.DateTime, models.ZeroDateTime:
		if !f.Quoted {
			return models.Value{}, decodeErr(f, want)
		}
		if models.IsZeroDateLiteral(f.Text) {
			return models.ZeroDate(f.Text), nil
		}
		t, err := time.Parse(dateTimeLayout, f.Text)
		if err != nil {
			return models.Value{}, vcerrors.Wrap(err, vcerrors.ErrorTypeValidation, "invalid datetime")
		}
		return models.DateTimeOf(t), nil
	case models.Binary:
		if f.Quoted || !strings.HasPrefix(f.Text, BinaryMarker) {
			return models.Value{}, decodeErr(f, want)
		}
		b, err := hex.DecodeString(f.Text[len(BinaryMarker):])
		if err != nil {
			return models.Value{}, vcerrors.Wrap(err, vcerrors.ErrorTypeValidation, "invalid binary field")
		}
		return models.Bytes(b), nil
	default:
		return models.Value{}, vcerrors.Newf(vcerrors.ErrorTypeUnsupportedValue,
			"cannot decode category %s", want)
	}
}

func decodeErr(f Field, want models.Category) error {
	return vcerrors.Newf(vcerrors.ErrorTypeValidation, "field %q is not a %s value", f.Text, want)
}
