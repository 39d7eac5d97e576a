package monitor

import "time"

// latencyWindow кольцевой буфер длительностей последних тиков
type latencyWindow struct {
	samples []time.Duration
	next    int
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) add(d time.Duration) {
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *latencyWindow) len() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

func (w *latencyWindow) mean() time.Duration {
	n := w.len()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range w.samples[:n] {
		sum += d
	}
	return sum / time.Duration(n)
}

func (w *latencyWindow) reset() {
	w.next = 0
	w.full = false
}
