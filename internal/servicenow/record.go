package servicenow

import "time"

// Record is one row returned by the Table API. Field lookups on missing
// columns return zero Fields so per-table extraction code stays linear.
type Record map[string]Field

// SysID returns the record's sys_id raw value.
func (r Record) SysID() string {
	return r.Field("sys_id").Value()
}

// Field returns the named field, or a zero Field when absent.
func (r Record) Field(name string) Field {
	if r == nil {
		return Field{}
	}
	return r[name]
}

// Time parses the named field as a glide_date_time.
func (r Record) Time(name string) (time.Time, bool) {
	return r.Field(name).Time()
}

// Int64 parses the named field as an integer, tolerating thousands
// separators.
func (r Record) Int64(name string) (int64, bool) {
	return r.Field(name).Int64()
}

// Display returns the named field's display value.
func (r Record) Display(name string) string {
	return r.Field(name).Display()
}

// Value returns the named field's raw value.
func (r Record) Value(name string) string {
	return r.Field(name).Value()
}
