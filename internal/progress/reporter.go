package progress

import (
	"sync"
	"time"
)

// Report calls emit with a snapshot of agg every interval until the returned
// stop function is called. stop emits one final snapshot and is idempotent.
func Report(agg *Aggregator, interval time.Duration, emit func(State)) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var last int64 = -1
		for {
			select {
			case <-ticker.C:
				st := agg.Snapshot()
				// skip idle ticks
				if st.Current != last {
					emit(st)
					last = st.Current
				}
			case <-done:
				emit(agg.Snapshot())
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
}
