package servicenow

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFieldUnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		wantValue   string
		wantDisplay string
	}{
		{
			name:        "bare string scalar",
			input:       `"abc123"`,
			wantValue:   "abc123",
			wantDisplay: "abc123",
		},
		{
			name:        "bare number scalar",
			input:       `1500`,
			wantValue:   "1500",
			wantDisplay: "1500",
		},
		{
			name:        "bare bool scalar",
			input:       `true`,
			wantValue:   "true",
			wantDisplay: "true",
		},
		{
			name:        "value and display pair",
			input:       `{"value":"f2b4c1","display_value":"Resolve incident"}`,
			wantValue:   "f2b4c1",
			wantDisplay: "Resolve incident",
		},
		{
			name:        "pair with numeric value",
			input:       `{"value":1200,"display_value":"1,200"}`,
			wantValue:   "1200",
			wantDisplay: "1,200",
		},
		{
			name:        "null",
			input:       `null`,
			wantValue:   "",
			wantDisplay: "",
		},
		{
			name:        "pair with null halves",
			input:       `{"value":null,"display_value":null}`,
			wantValue:   "",
			wantDisplay: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var f Field
			if err := json.Unmarshal([]byte(tt.input), &f); err != nil {
				t.Fatalf("Unmarshal(%s) error: %v", tt.input, err)
			}
			if got := f.Value(); got != tt.wantValue {
				t.Fatalf("Value()=%q, want %q", got, tt.wantValue)
			}
			if got := f.Display(); got != tt.wantDisplay {
				t.Fatalf("Display()=%q, want %q", got, tt.wantDisplay)
			}
		})
	}
}

func TestFieldDisplayFallsBackToValue(t *testing.T) {
	t.Parallel()

	f := NewField("raw-only", "")
	if got := f.Display(); got != "raw-only" {
		t.Fatalf("Display()=%q, want %q", got, "raw-only")
	}
}

func TestFieldMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	original := NewField("sys123", "Ask an agent")
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var decoded Field
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded.Value() != original.Value() || decoded.Display() != original.Display() {
		t.Fatalf("round trip got value=%q display=%q, want value=%q display=%q",
			decoded.Value(), decoded.Display(), original.Value(), original.Display())
	}
}

func TestFieldTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		field  Field
		want   time.Time
		wantOK bool
	}{
		{
			name:   "glide datetime",
			field:  NewField("2026-03-14 09:30:05", "2026-03-14 09:30:05"),
			want:   time.Date(2026, 3, 14, 9, 30, 5, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "rfc3339 fallback",
			field:  NewField("2026-03-14T09:30:05Z", ""),
			want:   time.Date(2026, 3, 14, 9, 30, 5, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "empty",
			field:  Field{},
			wantOK: false,
		},
		{
			name:   "malformed",
			field:  NewField("yesterday", "yesterday"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := tt.field.Time()
			if ok != tt.wantOK {
				t.Fatalf("Time() ok=%v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("Time()=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestFieldInt64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		field  Field
		want   int64
		wantOK bool
	}{
		{name: "plain integer", field: NewField("1500", ""), want: 1500, wantOK: true},
		{name: "thousands separator in display", field: NewField("", "12,345"), want: 12345, wantOK: true},
		{name: "float shaped raw value", field: NewField("12345.0", ""), want: 12345, wantOK: true},
		{name: "empty", field: Field{}, wantOK: false},
		{name: "non numeric", field: NewField("n/a", "n/a"), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := tt.field.Int64()
			if ok != tt.wantOK {
				t.Fatalf("Int64() ok=%v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("Int64()=%d, want %d", got, tt.want)
			}
		})
	}
}

func TestRecordMissingFieldIsZero(t *testing.T) {
	t.Parallel()

	rec := Record{"sys_id": NewField("abc", "abc")}
	if got := rec.Field("absent"); !got.IsZero() {
		t.Fatalf("Field(absent)=%+v, want zero Field", got)
	}
	if got := rec.SysID(); got != "abc" {
		t.Fatalf("SysID()=%q, want %q", got, "abc")
	}

	var nilRec Record
	if got := nilRec.Field("anything"); !got.IsZero() {
		t.Fatalf("nil Record Field()=%+v, want zero Field", got)
	}
}
