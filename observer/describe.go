package observer

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dcshock/imgpipe/resource"
)

// valueSummary describes a payload without its contents. Image payloads are
// never serialized.
type valueSummary struct {
	Type    string   `json:"type"`
	Rows    int      `json:"rows,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Images  int      `json:"images,omitempty"`
}

type tabular interface {
	Names() []string
	Rows() int
}

func describe(v interface{}) *valueSummary {
	if v == nil {
		return nil
	}
	s := &valueSummary{Type: fmt.Sprintf("%T", v)}
	if t, ok := v.(tabular); ok {
		s.Rows, s.Columns = t.Rows(), t.Names()
	}
	if c, ok := v.(resource.Carrier); ok {
		s.Images = len(c.Images())
	}
	return s
}

func (s *valueSummary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("type", s.Type)
	if s.Columns != nil {
		enc.AddInt("rows", s.Rows)
		if err := enc.AddArray("columns", zapcore.ArrayMarshalerFunc(func(ae zapcore.ArrayEncoder) error {
			for _, c := range s.Columns {
				ae.AppendString(c)
			}
			return nil
		})); err != nil {
			return err
		}
	}
	if s.Images > 0 {
		enc.AddInt("images", s.Images)
	}
	return nil
}

func describeField(key string, v interface{}) zap.Field {
	s := describe(v)
	if s == nil {
		return zap.Skip()
	}
	return zap.Object(key, s)
}
