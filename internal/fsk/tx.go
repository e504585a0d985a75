package fsk

import "github.com/kg9x/v21modem/internal/dsp"

// V21Tx is a continuous-phase binary FSK modulator. It owns one phase
// accumulator that is never reset, including at bit or byte boundaries:
// that continuity is what keeps the spectral sidelobes tight and lets
// V21Rx stay coherent across transitions.
type V21Tx struct {
	osc   dsp.Oscillator
	ts    float64
	mark  float64
	space float64
}

// NewV21Tx builds a modulator for the given sample rate and tone pair.
func NewV21Tx(sampleRate int, tones Tones) *V21Tx {
	return &V21Tx{
		ts:    1.0 / float64(sampleRate),
		mark:  tones.OmegaMark(),
		space: tones.OmegaSpace(),
	}
}

// Modulate converts in (a bit-sample stream, one value per audio frame, 0
// or 1) into out (an equal-length audio waveform in [-1,1]). Phase state
// persists across calls, so no caller needs to align a buffer with a
// symbol boundary.
func (tx *V21Tx) Modulate(in []int, out []float64) {
	for i, bit := range in {
		omega := tx.space
		if bit != 0 {
			omega = tx.mark
		}
		out[i] = tx.osc.Step(omega, tx.ts)
	}
}

// Phase returns the current accumulator phase in radians.
func (tx *V21Tx) Phase() float64 { return tx.osc.Phase() }
