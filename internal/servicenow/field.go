package servicenow

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the format the Table API uses for glide_date_time
// columns regardless of instance locale. All values are UTC.
const DateTimeLayout = "2006-01-02 15:04:05"

// Field holds one Table API field value. Depending on sysparm_display_value
// the API returns either a bare scalar or a {value, display_value} pair;
// Field resolves both shapes once at decode time so consumers never type
// switch on raw JSON.
type Field struct {
	value    string
	display  string
	resolved bool
}

// NewField builds a Field from explicit raw and display values. Intended for
// tests and for snapshot stores that persist both halves.
func NewField(value, display string) Field {
	return Field{value: value, display: display, resolved: true}
}

func (f *Field) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*f = Field{resolved: true}
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var pair struct {
			Value        json.RawMessage `json:"value"`
			DisplayValue json.RawMessage `json:"display_value"`
		}
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		*f = Field{
			value:    decodeScalar(pair.Value),
			display:  decodeScalar(pair.DisplayValue),
			resolved: true,
		}
		return nil
	}

	scalar := decodeScalar(data)
	*f = Field{value: scalar, display: scalar, resolved: true}
	return nil
}

func (f Field) MarshalJSON() ([]byte, error) {
	if f.value == f.display {
		return json.Marshal(f.value)
	}
	return json.Marshal(map[string]string{
		"value":         f.value,
		"display_value": f.display,
	})
}

// Value returns the raw value half (sys_ids for reference fields).
func (f Field) Value() string {
	return f.value
}

// Display returns the display half, falling back to the raw value.
func (f Field) Display() string {
	if f.display != "" {
		return f.display
	}
	return f.value
}

// IsZero reports whether both halves are empty.
func (f Field) IsZero() bool {
	return f.value == "" && f.display == ""
}

// Time parses the field as a glide_date_time in UTC. The second return is
// false for empty or malformed values; malformed timestamps are a data
// quality problem, not a caller error.
func (f Field) Time() (time.Time, bool) {
	for _, candidate := range []string{f.display, f.value} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if parsed, err := time.ParseInLocation(DateTimeLayout, candidate, time.UTC); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339, candidate); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// Int64 parses the field as an integer, tolerating thousands separators in
// display values ("12,345") and float-shaped raw values ("12345.0"). Returns
// false for empty or malformed input.
func (f Field) Int64() (int64, bool) {
	for _, candidate := range []string{f.value, f.display} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		candidate = strings.ReplaceAll(candidate, ",", "")
		if parsed, err := strconv.ParseInt(candidate, 10, 64); err == nil {
			return parsed, true
		}
		if parsed, err := strconv.ParseFloat(candidate, 64); err == nil {
			return int64(parsed), true
		}
	}
	return 0, false
}

func decodeScalar(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return strconv.FormatBool(asBool)
	}
	return trimmed
}
