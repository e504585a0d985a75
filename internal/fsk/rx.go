package fsk

import "github.com/kg9x/v21modem/internal/dsp"

// BaudRate is the V.21 symbol rate.
const BaudRate = 300

// SamplesPerSymbol returns the number of audio samples per UART bit at the
// given sample rate. The caller is responsible for ensuring sampleRate is
// a multiple of 300; neither this function nor NewV21Tx/NewV21Rx
// validates it (config.Validate, audio.Open and cmd/v21tone do).
func SamplesPerSymbol(sampleRate int) int {
	return sampleRate / BaudRate
}

// V21Rx is a non-coherent correlator-bank FSK demodulator: two
// sliding-window correlators (one per tone) produce an envelope-power
// difference each sample, which is AGC-normalized against the combined
// tone envelope, low-pass filtered, and sliced to a hard bit decision. It
// requires no external clock and degrades gracefully under noise and
// timing drift, because it re-derives the tone phase reference from its
// own free-running oscillators rather than from the transmitter's clock.
type V21Rx struct {
	mark  *dsp.ToneCorrelator
	space *dsp.ToneCorrelator
	agc   *dsp.AGC
	lpf   *dsp.MovingAverage

	toggleRate   *dsp.MovingAverage
	prevBit      int
	havePrevBit  bool
	disagreement float64

	locked bool
}

// NewV21Rx builds a demodulator for the given sample rate and the tone
// pair it should listen for.
func NewV21Rx(sampleRate int, tones Tones) *V21Rx {
	n := SamplesPerSymbol(sampleRate)
	ts := 1.0 / float64(sampleRate)
	return &V21Rx{
		mark:       dsp.NewToneCorrelator(tones.OmegaMark(), ts, n),
		space:      dsp.NewToneCorrelator(tones.OmegaSpace(), ts, n),
		agc:        dsp.NewAGC(0.70, 0.00009),
		lpf:        dsp.NewMovingAverage(n),
		toggleRate: dsp.NewMovingAverage(4 * n),
	}
}

// Demodulate converts in (raw audio samples in [-1,1]) into out (a hard
// bit decision per sample, one decision per audio frame). All correlator
// and filter state persists across calls, so output is identical
// regardless of how the input stream is split across calls: every piece
// of state (ring buffers, running sums, oscillator phases, filter memory)
// lives on the receiver and nothing is derived from the call boundary.
func (rx *V21Rx) Demodulate(in []float64, out []int) {
	for i, x := range in {
		mPower, ready := rx.mark.Push(x)
		sPower, _ := rx.space.Push(x)

		d := mPower - sPower
		rx.agc.Push(mPower + sPower)
		if rng := rx.agc.Range(); rng > 0 {
			d /= rng
		}
		y := rx.lpf.Push(d)
		rx.locked = ready

		if !ready {
			// Before the correlator windows fill, hold mark/idle so
			// UartRx doesn't manufacture a phantom start bit.
			out[i] = 1
			rx.observeBit(1)
			continue
		}

		bit := 0
		if y >= 0 {
			bit = 1
		}
		out[i] = bit
		rx.observeBit(bit)
	}
}

// observeBit folds one hard decision into the rolling toggle-rate
// estimate: under a clean signal the decision should only flip roughly
// once per symbol period, so a toggle rate well above that is a cheap
// proxy for link noise.
func (rx *V21Rx) observeBit(bit int) {
	toggled := 0.0
	if rx.havePrevBit && bit != rx.prevBit {
		toggled = 1.0
	}
	rx.disagreement = rx.toggleRate.Push(toggled)
	rx.prevBit = bit
	rx.havePrevBit = true
}

// Locked reports whether the correlator windows were fully populated as
// of the most recent Demodulate call.
func (rx *V21Rx) Locked() bool { return rx.locked }

// DisagreementRate returns the rolling fraction of hard decisions that
// flipped relative to the previous sample, a rough noise-floor estimate
// usable as a link-quality proxy.
func (rx *V21Rx) DisagreementRate() float64 { return rx.disagreement }
