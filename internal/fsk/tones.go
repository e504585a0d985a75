// Package fsk implements the V.21 continuous-phase FSK modulator and
// demodulator: V21Tx turns a bit-sample stream into an audio waveform,
// V21Rx recovers a bit-sample stream from a noisy waveform without an
// external clock.
package fsk

import "math"

// Role selects which tone pair a station transmits on and which it
// listens to. Originate transmits mark=980 Hz, space=1180 Hz and listens
// on mark=1650 Hz, space=1850 Hz; Answer transmits mark=1650 Hz,
// space=1850 Hz and listens on mark=980 Hz, space=1180 Hz.
type Role int

const (
	Originate Role = iota
	Answer
)

// Tones is one tone pair: Mark is logical 1 (idle), Space is logical 0.
type Tones struct {
	MarkHz  float64
	SpaceHz float64
}

// OmegaMark and OmegaSpace return the tones in angular frequency (rad/s),
// the form V21Tx/V21Rx consume.
func (t Tones) OmegaMark() float64  { return 2 * math.Pi * t.MarkHz }
func (t Tones) OmegaSpace() float64 { return 2 * math.Pi * t.SpaceHz }

// Mark is the lower tone of each carrier's ±100 Hz pair, space the upper,
// consistently for both roles.
const (
	originateCarrierHz = 1080.0
	answerCarrierHz    = 1750.0
	toneOffsetHz       = 100.0
)

func tonesAround(carrierHz float64) Tones {
	return Tones{MarkHz: carrierHz - toneOffsetHz, SpaceHz: carrierHz + toneOffsetHz}
}

// TxTones returns the tone pair a station of the given role transmits on.
func TxTones(role Role) Tones {
	if role == Originate {
		return tonesAround(originateCarrierHz)
	}
	return tonesAround(answerCarrierHz)
}

// RxTones returns the tone pair a station of the given role listens to,
// i.e. the other role's transmit pair.
func RxTones(role Role) Tones {
	if role == Originate {
		return TxTones(Answer)
	}
	return TxTones(Originate)
}
