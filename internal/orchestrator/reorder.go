package orchestrator

// Reorder turns the unordered result stream of concurrent workers back
// into cue-index order so the downstream fitter sees cues sequentially.
// Results arriving ahead of their turn are parked until the gap fills.
// The output channel closes when the input closes; parked results with
// a missing predecessor are dropped, which only happens when the run
// aborted mid-batch.
func Reorder(in <-chan Result, buffer int) <-chan Result {
	out := make(chan Result, buffer)
	go func() {
		defer close(out)
		pending := make(map[int]Result)
		next := 0
		for r := range in {
			pending[r.Cue.Index] = r
			for {
				ready, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				out <- ready
				next++
			}
		}
	}()
	return out
}
