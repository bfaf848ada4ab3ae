package weblog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Timestamp is the parsed date/time of a record together with its textual parts.
type Timestamp struct {
	time.Time
	DateText string
	TimeText string
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

// ParseTimestamp combines a date and a time-of-day column value. Values may be
// strings, byte slices or time.Time (drivers decode DATE columns that way).
func ParseTimestamp(date, tod any) (Timestamp, error) {
	d := dateText(date)
	t := timeText(tod)
	if d == "" {
		return Timestamp{}, fmt.Errorf("parse timestamp: empty date")
	}
	// Some exporters store the date column as a midnight datetime.
	day := d
	if len(d) > len(time.DateOnly) && (d[len(time.DateOnly)] == ' ' || d[len(time.DateOnly)] == 'T') {
		day = d[:len(time.DateOnly)]
	}
	if t == "" {
		parsed, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return Timestamp{}, fmt.Errorf("parse timestamp %q: %w", d, err)
		}
		return Timestamp{Time: parsed, DateText: d}, nil
	}
	combined := day + " " + t
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, combined)
		if err == nil {
			return Timestamp{Time: parsed, DateText: d, TimeText: t}, nil
		}
		lastErr = err
	}
	return Timestamp{}, fmt.Errorf("parse timestamp %q: %w", combined, lastErr)
}

func dateText(v any) string {
	if tv, ok := v.(time.Time); ok {
		return tv.Format(time.DateOnly)
	}
	return strings.TrimSpace(Text(v))
}

func timeText(v any) string {
	if tv, ok := v.(time.Time); ok {
		return tv.Format(time.TimeOnly)
	}
	return strings.TrimSpace(Text(v))
}

// Text renders a column value as a string; NULL becomes "".
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// SortByTimestamp returns a copy of records ordered by timestamp. Records with
// equal timestamps keep their read order.
func SortByTimestamp(records []RawLogRecord) []RawLogRecord {
	out := append([]RawLogRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp.Time)
	})
	return out
}
