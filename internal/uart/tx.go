// Package uart implements the byte<->bit-sample framer (UartTx) and
// deframer (UartRx): a classic 1-start, 8-data (LSB-first), 1-stop UART
// frame riding on the bit-sample stream between the host and the FSK
// modem.
package uart

import "sync"

// UartTx is the byte-to-bitstream framer. It owns a queue of pending
// bit-samples; Submit appends a framed byte to that queue and never
// blocks or fails, and Fill drains it (or emits mark/idle when empty)
// into a caller-supplied buffer of any length.
//
// Submit is called from the serial reader goroutine, Fill from the
// audio-out callback; the only shared state is this pending queue, and
// the critical section guarding it is a plain mutex around a slice
// append/pop — never I/O.
type UartTx struct {
	n int // samples per symbol

	mu      sync.Mutex
	pending []int
}

// NewUartTx builds a framer for a line running at samplesPerSymbol
// samples per UART bit.
func NewUartTx(samplesPerSymbol int) *UartTx {
	return &UartTx{n: samplesPerSymbol}
}

// Submit appends one framed byte to the pending queue: a start bit (0),
// eight data bits LSB-first, and a stop bit (1), each held for N samples,
// for 10*N bit-samples total. Non-blocking; never fails — the queue is
// unbounded in practice, bounded only by how fast the serial side
// produces bytes relative to the 300 baud drain rate.
func (tx *UartTx) Submit(b byte) {
	frame := make([]int, 0, 10*tx.n)
	frame = appendBit(frame, 0, tx.n) // start bit
	for i := 0; i < 8; i++ {
		frame = appendBit(frame, int((b>>i)&1), tx.n) // LSB-first data bits
	}
	frame = appendBit(frame, 1, tx.n) // stop bit

	tx.mu.Lock()
	tx.pending = append(tx.pending, frame...)
	tx.mu.Unlock()
}

func appendBit(frame []int, bit, n int) []int {
	for i := 0; i < n; i++ {
		frame = append(frame, bit)
	}
	return frame
}

// Fill writes len(out) bit-samples into out, draining the pending queue
// first and padding any deficit with mark (1, idle) so the modulated
// stream never has gaps: if the audio callback requests more samples
// than are queued, the shortfall is filled with mark.
func (tx *UartTx) Fill(out []int) {
	tx.mu.Lock()
	n := copy(out, tx.pending)
	tx.pending = tx.pending[n:]
	tx.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 1
	}
}

// Pending returns the number of bit-samples currently queued, for
// monitoring/metrics use: internal/monitor watches this to report queue
// depth growing during a burst and draining during idle.
func (tx *UartTx) Pending() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.pending)
}
