package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// scanJSON decodes a JSONB column into dst, tolerating NULL.
func scanJSON(src interface{}, dst interface{}) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// PriceMap maps branch ids to a fee. Stored as JSONB.
type PriceMap map[string]float64

func (m PriceMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *PriceMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// DayHours defines opening hours for a single weekday.
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// BusinessHours maps weekday name to opening hours. Stored as JSONB.
type BusinessHours map[string]DayHours

func (h BusinessHours) Value() (driver.Value, error) {
	if h == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(h)
}

func (h *BusinessHours) Scan(src interface{}) error {
	return scanJSON(src, h)
}

// DateList is a set of ISO dates (YYYY-MM-DD). Stored as JSONB.
type DateList []string

func (l DateList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *DateList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Contains reports membership of an ISO date.
func (l DateList) Contains(date string) bool {
	for _, d := range l {
		if d == date {
			return true
		}
	}
	return false
}

// CourseSchedule describes when a course's classes run. Stored as JSONB.
type CourseSchedule struct {
	Days      []string `json:"days"` // weekday names, lowercase
	StartTime string   `json:"start_time,omitempty"`
	EndTime   string   `json:"end_time,omitempty"`
}

func (s CourseSchedule) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *CourseSchedule) Scan(src interface{}) error {
	return scanJSON(src, s)
}
