package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	// CreatedAtField is the commission field that carries the creation timestamp.
	CreatedAtField = "created_at"

	// MonthOnlyLayout labels buckets by full month name ("August").
	MonthOnlyLayout = "January"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// MonthBuckets groups records by month label. Labels iterate in the order
// they were first seen and records keep their input order.
type MonthBuckets struct {
	labels  []string
	buckets map[string][]*Record
}

// Labels returns the bucket labels in first-seen order.
func (m *MonthBuckets) Labels() []string {
	return append([]string(nil), m.labels...)
}

// Records returns the records in the bucket for label.
func (m *MonthBuckets) Records(label string) []*Record {
	return m.buckets[label]
}

// Len returns the number of buckets.
func (m *MonthBuckets) Len() int {
	return len(m.labels)
}

func (m *MonthBuckets) add(label string, r *Record) {
	if m.buckets == nil {
		m.buckets = map[string][]*Record{}
	}
	if _, ok := m.buckets[label]; !ok {
		m.labels = append(m.labels, label)
	}
	m.buckets[label] = append(m.buckets[label], r)
}

// PartitionByMonth buckets records by the month of their created_at field,
// formatted with layout. An empty layout means MonthOnlyLayout, in which case
// the same month of different years shares a bucket.
func PartitionByMonth(records []*Record, layout string) (*MonthBuckets, error) {
	if layout == "" {
		layout = MonthOnlyLayout
	}

	m := &MonthBuckets{buckets: map[string][]*Record{}}
	for i, r := range records {
		if !r.Has(CreatedAtField) {
			return nil, fmt.Errorf("record %d: no %s field: %w", i, CreatedAtField, ErrBadTimestamp)
		}
		ts, err := ParseTimestamp(r.Get(CreatedAtField))
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		m.add(ts.Format(layout), r)
	}
	return m, nil
}

// ParseTimestamp parses the timestamp forms the commission feed emits.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}
