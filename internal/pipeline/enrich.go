package pipeline

import (
	"fmt"

	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// Enrich joins the classified batch against lookup. Only non-bot records are
// looked up; a miss, a bot or a nil lookup leaves all four geo fields empty.
// The returned batch is new; batch and classes are not modified.
func Enrich(batch weblog.Batch, classes []weblog.Classification, lookup GeoLookup) (weblog.NormalizedBatch, error) {
	if len(classes) != len(batch.Records) {
		return weblog.NormalizedBatch{}, fmt.Errorf("enrich batch at %d: %d classifications for %d records",
			batch.Offset, len(classes), len(batch.Records))
	}
	out := weblog.NormalizedBatch{
		Offset:  batch.Offset,
		Schema:  batch.Schema.Output(),
		Records: make([]weblog.NormalizedRecord, len(batch.Records)),
	}
	for i, rec := range batch.Records {
		nr := weblog.NormalizedRecord{Raw: rec, Classification: classes[i]}
		if lookup != nil && !classes[i].IsBot {
			if loc, ok := lookup.Lookup(rec.ClientIP); ok {
				nr.Geo = &loc
			}
		}
		out.Records[i] = nr
	}
	return out, nil
}
