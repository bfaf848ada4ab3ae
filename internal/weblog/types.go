// Package weblog defines the record types that flow through the normalization pipeline.
package weblog

// Unknown is the placeholder used for classification fields that could not be derived.
const Unknown = "Unknown"

// RawLogRecord is one access-log row as read from the input store. Values holds
// every column of the input schema verbatim; the typed fields are views onto the
// columns the pipeline interprets.
type RawLogRecord struct {
	// Values are the original column values aligned with Schema.Columns.
	Values []any
	// Date is the calendar date column rendered as text.
	Date string
	// Time is the time-of-day column rendered as text.
	Time string
	// ClientIP is the c-ip column.
	ClientIP string
	// UserAgent is the cs(User-Agent) column; empty when NULL.
	UserAgent string
	// Timestamp combines Date and Time and drives intra-batch ordering.
	Timestamp Timestamp
}

// Classification is derived once per record from its user-agent string.
type Classification struct {
	Browser        string
	BrowserVersion string
	OSFamily       string
	OSVersion      string
	Device         string
	IsMobile       bool
	IsPC           bool
	IsBot          bool
}

// UnknownClassification is returned for empty or unparseable user-agent strings.
func UnknownClassification() Classification {
	return Classification{
		Browser:  Unknown,
		OSFamily: Unknown,
		Device:   Unknown,
	}
}

// GeoLocation is a reference location for a client IP.
type GeoLocation struct {
	Lat     float64
	Lon     float64
	City    string
	Country string
}

// NormalizedRecord is the unit written to the output store. Geo is nil unless the
// record was enriched; all four location columns are then written as NULL.
type NormalizedRecord struct {
	Raw            RawLogRecord
	Classification Classification
	Geo            *GeoLocation
}

// Values returns the output row aligned with OutputSchema.Columns.
func (r NormalizedRecord) Values() []any {
	out := make([]any, 0, len(r.Raw.Values)+len(ClassificationColumns)+len(GeoColumns))
	out = append(out, r.Raw.Values...)
	c := r.Classification
	out = append(out,
		c.Browser,
		c.BrowserVersion,
		c.OSFamily,
		c.OSVersion,
		c.Device,
		boolInt(c.IsMobile),
		boolInt(c.IsPC),
		boolInt(c.IsBot),
	)
	if r.Geo == nil {
		return append(out, nil, nil, nil, nil)
	}
	return append(out, r.Geo.Lat, r.Geo.Lon, r.Geo.City, r.Geo.Country)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Batch is a bounded slice of input rows read at Offset.
type Batch struct {
	Offset  int64
	Schema  Schema
	Records []RawLogRecord
}

// UserAgents returns the user-agent strings of the batch in record order.
func (b Batch) UserAgents() []string {
	out := make([]string, len(b.Records))
	for i, rec := range b.Records {
		out[i] = rec.UserAgent
	}
	return out
}

// NormalizedBatch is a fully processed batch ready for the writer.
type NormalizedBatch struct {
	Offset  int64
	Schema  OutputSchema
	Records []NormalizedRecord
}
