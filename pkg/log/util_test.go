package log

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestToFields(t *testing.T) {
	now := time.Now()
	err := errors.New("boom")

	tests := []struct {
		name  string
		input []any
		want  int
	}{
		{"empty input", []any{}, 0},
		{"robot and instance", []any{"robot", "AMR-001", "index", 3, "busy", true}, 3},
		{"time type", []any{"t", now}, 1},
		{"duration", []any{"elapsed", 2 * time.Second}, 1},
		{"bytes", []any{"data", []byte("xyz")}, 1},
		{"error only", []any{err}, 1},
		{"multiple errors", []any{err, errors.New("again")}, 2},
		{"mixed field types", []any{"msg", "ok", zap.String("x", "y"), "num", 42}, 3},
		{"odd number of args", []any{"key1", "val1", "key2"}, 2},
		{"non-string key", []any{123, "value", true, 99}, 2},
		{"nil values", []any{"a", nil, "b", (*int)(nil)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.input...)

			if len(fields) != tt.want {
				t.Fatalf("got %d fields, want %d: %v", len(fields), tt.want, fields)
			}
			for _, f := range fields {
				if f.Key == "" {
					t.Errorf("field has empty key: %+v", f)
				}
			}
		})
	}
}

func TestTypedField(t *testing.T) {
	if f := typedField("n", 7); f.Type != zapcore.Int64Type {
		t.Errorf("int mapped to %v", f.Type)
	}
	if f := typedField("s", "x"); f.Type != zapcore.StringType {
		t.Errorf("string mapped to %v", f.Type)
	}
	if f := typedField("b", true); f.Type != zapcore.BoolType {
		t.Errorf("bool mapped to %v", f.Type)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(nil) == nil {
		t.Fatal("nil context must fall back to the global logger")
	}

	l := NewNopLogger().WithName("request")
	ctx := NewContext(t.Context(), l)
	if got := FromContext(ctx); got != l {
		t.Fatalf("FromContext returned %v, want %v", got, l)
	}
}

func TestOptionsValidate(t *testing.T) {
	o := NewOptions()
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("defaults should validate: %v", errs)
	}

	o.Level = "loud"
	o.Format = "xml"
	if errs := o.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	opts := NewOptions()
	opts.Level = "warn"
	opts.OutputPaths = []string{"stderr"}

	l := NewLogger(opts).(*zapLogger)
	if l.level.Level() != zapcore.WarnLevel {
		t.Fatalf("level = %v, want warn", l.level.Level())
	}

	l.level.SetLevel(zapcore.DebugLevel)
	if !l.core.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("atomic level change not observed by core")
	}
}
