package dsp

// ToneCorrelator maintains the sliding-window sine/cosine projections of an
// input signal against one tone:
//
//	S[n] = sum_{k=n-N+1..n} x[k]*sin(omega*k*Ts)
//	C[n] = sum_{k=n-N+1..n} x[k]*cos(omega*k*Ts)
//
// Rather than recomputing the sum from scratch for every sample (O(N) per
// sample), each new sample's contribution is added and the contribution
// that falls out of the trailing edge of the window is subtracted, an O(1)
// sliding sum. The per-sample sin/cos reference is produced by a free
// running Oscillator so the correlator's tone phase is continuous across
// ring-buffer wraparound and across calls, exactly as an absolute sample
// index k would give.
type ToneCorrelator struct {
	osc   Oscillator
	omega float64
	ts    float64
	n     int

	ring  []complex128 // ring[i] = x[k]*(cos(theta_k) + j*sin(theta_k)) for the sample still in the window
	pos   int
	sum   complex128
	count int // number of samples pushed so far, saturates at n
}

// NewToneCorrelator builds a correlator for one tone (angular frequency
// omega, rad/s) over a window of n samples at sample period ts.
func NewToneCorrelator(omega, ts float64, n int) *ToneCorrelator {
	if n < 1 {
		n = 1
	}
	return &ToneCorrelator{
		omega: omega,
		ts:    ts,
		n:     n,
		ring:  make([]complex128, n),
	}
}

// Push feeds one new audio sample into the correlator and returns the
// envelope power |S+jC|^2 for the trailing window ending at this sample,
// and whether the window is fully populated yet. Before n samples have
// arrived, ready is false and the returned power does not yet reflect a
// full window.
func (t *ToneCorrelator) Push(x float64) (power float64, ready bool) {
	c := t.osc.Cos()
	s := t.osc.Sin()
	t.osc.Advance(t.omega, t.ts)

	contribution := complex(x*c, x*s)

	old := t.ring[t.pos]
	t.ring[t.pos] = contribution
	t.sum += contribution - old
	t.pos++
	if t.pos == t.n {
		t.pos = 0
	}

	if t.count < t.n {
		t.count++
	}

	re := real(t.sum)
	im := imag(t.sum)
	return re*re + im*im, t.count >= t.n
}

// Reset clears all accumulated state, as if newly constructed.
func (t *ToneCorrelator) Reset() {
	t.osc = Oscillator{}
	for i := range t.ring {
		t.ring[i] = 0
	}
	t.pos = 0
	t.sum = 0
	t.count = 0
}
