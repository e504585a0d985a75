// Package pipeline wires the byte-level framer/deframer and the FSK
// modulator/demodulator into the two audio-callback-driven directions,
// and exposes the byte-level surface (Submit, and a delivered-byte
// callback) that internal/serialbridge and internal/monitor consume.
//
//	bytes-in  -> [UartTx] -> bits@Fs -> [V21Tx] -> audio out
//	audio in  -> [V21Rx]  -> bits@Fs -> [UartRx] -> bytes-out
package pipeline

import (
	"github.com/kg9x/v21modem/internal/fsk"
	"github.com/kg9x/v21modem/internal/uart"
)

// Pipeline owns one direction-pair of DSP state for one link. It is not
// safe for concurrent use by more than two callers: the TX half is
// touched only by the output callback (through FillOut), the RX half
// only by the input callback (through DrainIn); Submit and the
// delivered-byte callback are the only crossing points, and both are
// already internally synchronized (UartTx) or required to be
// non-blocking (the deliver callback).
type Pipeline struct {
	uartTx *uart.UartTx
	v21Tx  *fsk.V21Tx

	v21Rx  *fsk.V21Rx
	uartRx *uart.UartRx

	// Separate scratch buffers: FillOut runs on the audio-out callback,
	// DrainIn runs on the audio-in callback, so sharing one buffer
	// between them would race.
	outBits []int
	inBits  []int
}

// New builds a pipeline for the given sample rate and role. deliver is
// invoked for every byte UartRx recovers; it must not block.
func New(sampleRate int, role fsk.Role, deliver func(byte)) *Pipeline {
	n := fsk.SamplesPerSymbol(sampleRate)
	return &Pipeline{
		uartTx: uart.NewUartTx(n),
		v21Tx:  fsk.NewV21Tx(sampleRate, fsk.TxTones(role)),
		v21Rx:  fsk.NewV21Rx(sampleRate, fsk.RxTones(role)),
		uartRx: uart.NewUartRx(n, deliver),
	}
}

// Submit queues one byte for transmission, called from the serial
// reader goroutine.
func (p *Pipeline) Submit(b byte) { p.uartTx.Submit(b) }

// PendingSamples returns UartTx's queue depth, for internal/monitor.
func (p *Pipeline) PendingSamples() int { return p.uartTx.Pending() }

// Locked reports whether V21Rx's correlator windows are currently
// populated, for internal/monitor's link-lock gauge.
func (p *Pipeline) Locked() bool { return p.v21Rx.Locked() }

// DisagreementRate returns V21Rx's rolling hard-decision toggle rate,
// for internal/monitor's bit-error proxy gauge.
func (p *Pipeline) DisagreementRate() float64 { return p.v21Rx.DisagreementRate() }

// FillOut is the audio output callback's entry point: it drains UartTx
// into a bit-sample scratch buffer and modulates it straight into out.
// Called only from the audio output callback.
func (p *Pipeline) FillOut(out []float64) {
	if cap(p.outBits) < len(out) {
		p.outBits = make([]int, len(out))
	}
	bits := p.outBits[:len(out)]
	p.uartTx.Fill(bits)
	p.v21Tx.Modulate(bits, out)
}

// DrainIn is the audio input callback's entry point: it demodulates in
// into a bit-sample scratch buffer and deframes it, delivering any
// recovered bytes through the deliver callback passed to New. Called
// only from the audio input callback.
//
// in is read-only here and is not retained past the call.
func (p *Pipeline) DrainIn(in []float64) {
	if cap(p.inBits) < len(in) {
		p.inBits = make([]int, len(in))
	}
	bits := p.inBits[:len(in)]
	p.v21Rx.Demodulate(in, bits)
	p.uartRx.Push(bits)
}
