package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExampleHub_Emit shows a run reporting classification progress to a custom sink.
func ExampleHub_Emit() {
	var rows int64
	sink := SinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageBatchWritten {
				rows += evt.Rows
			}
		}
		return nil
	})
	hub := NewHub(Config{BufferSize: 8, FlushInterval: time.Second}, sink)

	runID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	hub.Emit(Event{RunID: runID, TS: time.Unix(0, 0), Stage: StageRunStart})
	hub.Emit(Event{RunID: runID, TS: time.Unix(1, 0), Stage: StageBatchWritten, Offset: 0, Rows: 10000})
	hub.Emit(Event{RunID: runID, TS: time.Unix(2, 0), Stage: StageBatchWritten, Offset: 10000, Rows: 2500})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("rows written: %d\n", rows)
	// Output:
	// rows written: 12500
}
