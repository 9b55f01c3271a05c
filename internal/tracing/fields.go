package tracing

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrEmptyFieldKey is returned by formatters for fields without a key.
var ErrEmptyFieldKey = errors.New("field key must not be empty")

// Field is a key/value pair attached to a span or event.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Err records err under the "error" key.
func Err(err error) Field { return Field{Key: "error", Value: err} }

func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// FormattedFields is the cached textual form of a span's fields.
type FormattedFields struct {
	Fields string
}

// FieldFormatter renders fields to text. AddFields appends newly recorded
// fields to an existing rendering.
type FieldFormatter interface {
	FormatFields(w *strings.Builder, fields []Field) error
	AddFields(current *FormattedFields, fields []Field) error
}

// FormattedFieldsKey returns the extension key under which a formatter's
// FormattedFields are stored. Each formatter type gets its own slot.
func FormattedFieldsKey(f FieldFormatter) any {
	return formattedFieldsKey{t: reflect.TypeOf(f)}
}

type formattedFieldsKey struct {
	t reflect.Type
}

// DefaultFields renders fields as space separated key=value pairs.
type DefaultFields struct{}

// FormatFields implements FieldFormatter.
func (DefaultFields) FormatFields(w *strings.Builder, fields []Field) error {
	for i, f := range fields {
		if f.Key == "" {
			return ErrEmptyFieldKey
		}
		if i > 0 || w.Len() > 0 {
			w.WriteByte(' ')
		}
		w.WriteString(f.Key)
		w.WriteByte('=')
		w.WriteString(formatValue(f.Value))
	}
	return nil
}

// AddFields implements FieldFormatter.
func (d DefaultFields) AddFields(current *FormattedFields, fields []Field) error {
	var b strings.Builder
	b.WriteString(current.Fields)
	if err := d.FormatFields(&b, fields); err != nil {
		return err
	}
	current.Fields = b.String()
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t\n\"=") {
			return strconv.Quote(val)
		}
		return val
	case error:
		return strconv.Quote(val.Error())
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// JSONFields renders fields as a JSON object using zap's JSON encoder.
type JSONFields struct{}

var jsonFieldsEncoder = zapcore.NewJSONEncoder(zapcore.EncoderConfig{
	LineEnding:     "",
	EncodeDuration: zapcore.StringDurationEncoder,
})

// FormatFields implements FieldFormatter. Fields are appended to w as one
// JSON object; a non-empty w is treated as an existing object and merged.
func (JSONFields) FormatFields(w *strings.Builder, fields []Field) error {
	zfs := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		if f.Key == "" {
			return ErrEmptyFieldKey
		}
		zfs = append(zfs, zap.Any(f.Key, f.Value))
	}

	buf, err := jsonFieldsEncoder.EncodeEntry(zapcore.Entry{}, zfs)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	defer buf.Free()

	obj := strings.TrimSpace(buf.String())
	existing := strings.TrimSpace(w.String())
	if existing == "" || existing == "{}" {
		w.Reset()
		w.WriteString(obj)
		return nil
	}
	if obj == "{}" {
		return nil
	}
	w.Reset()
	w.WriteString(strings.TrimSuffix(existing, "}"))
	w.WriteByte(',')
	w.WriteString(strings.TrimPrefix(obj, "{"))
	return nil
}

// AddFields implements FieldFormatter.
func (j JSONFields) AddFields(current *FormattedFields, fields []Field) error {
	var b strings.Builder
	b.WriteString(current.Fields)
	if err := j.FormatFields(&b, fields); err != nil {
		return err
	}
	current.Fields = b.String()
	return nil
}

func zapFields(fields []Field) []zapcore.Field {
	out := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
