package atengine

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestLimitedEnqueueIsNoOpOnlyAboveQueueMax checks the limited-enqueue
// drop rule over arbitrary interleavings of limited and unlimited Enqueue
// calls of varying batch sizes: a limited call is a no-op whenever the
// queue already holds more than QueueMax, and otherwise (as well as for
// every unlimited call) the whole batch is appended.
func TestLimitedEnqueueIsNoOpOnlyAboveQueueMax(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		e := New(newFakePort(), Handlers{}, &nopAborter{}, time.Second)

		steps := rapid.IntRange(0, 40).Draw(tt, "steps")
		for i := 0; i < steps; i++ {
			batch := rapid.IntRange(1, 3).Draw(tt, "batch")
			limited := rapid.Bool().Draw(tt, "limited")

			cmds := make([]string, batch)
			for j := range cmds {
				cmds[j] = "AT"
			}

			before := e.QueueLen()
			e.Enqueue(cmds, limited)
			after := e.QueueLen()

			if limited && before > QueueMax {
				if after != before {
					tt.Fatalf("limited enqueue onto an already-over-bound queue must be a no-op: before=%d after=%d", before, after)
				}
				continue
			}
			if after != before+batch {
				tt.Fatalf("enqueue must append the full batch: before=%d batch=%d after=%d", before, batch, after)
			}
		}
	})
}
