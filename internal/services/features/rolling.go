package features

import "math"

// rolling keeps a fixed window of values with running sums.
type rolling struct {
	vals []float64
	head int
	size int
	sum  float64
	sum2 float64
}

func newRolling(window int) *rolling {
	if window < 1 {
		window = 1
	}
	return &rolling{vals: make([]float64, window)}
}

func (r *rolling) push(v float64) {
	if r.size == len(r.vals) {
		old := r.vals[r.head]
		r.sum -= old
		r.sum2 -= old * old
		r.vals[r.head] = v
		r.head = (r.head + 1) % len(r.vals)
	} else {
		r.vals[(r.head+r.size)%len(r.vals)] = v
		r.size++
	}
	r.sum += v
	r.sum2 += v * v
}

func (r *rolling) full() bool { return r.size == len(r.vals) }

func (r *rolling) mean() float64 {
	if r.size == 0 {
		return 0
	}
	return r.sum / float64(r.size)
}

// stddev is the sample standard deviation; zero below two samples.
func (r *rolling) stddev() float64 {
	if r.size < 2 {
		return 0
	}
	n := float64(r.size)
	m := r.sum / n
	variance := (r.sum2 - n*m*m) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (r *rolling) reset() {
	r.head = 0
	r.size = 0
	r.sum = 0
	r.sum2 = 0
}
