package uart

// state is the UartRx bit-synchronization state: Idle waits for a
// falling edge, Start confirms it at the half-bit mark, Data shifts in
// the eight data bits, Stop waits out the stop bit (but emits regardless
// of its value).
type state int

const (
	stateIdle state = iota
	stateStart
	stateData
	stateStop
)

// UartRx is a bitstream-to-byte deframer. It samples the incoming bit
// stream at the start bit's half-bit offset and then at every N samples
// thereafter, re-synchronizing on every frame so a timing error in one
// byte cannot propagate into the next.
type UartRx struct {
	n       int // samples per symbol
	deliver func(byte)

	st  state
	c   int
	k   int
	acc byte
}

// NewUartRx builds a deframer for a line running at samplesPerSymbol
// samples per UART bit. deliver is invoked once per successfully framed
// byte, in the order of each byte's stop-bit expiry; it must not block,
// since Push is called directly from the realtime audio-in callback —
// callers needing to hand the byte across a thread boundary should wrap
// a non-blocking channel send.
func NewUartRx(samplesPerSymbol int, deliver func(byte)) *UartRx {
	return &UartRx{n: samplesPerSymbol, deliver: deliver}
}

// Push consumes len(in) bit-samples (0 or 1, one per audio frame) and
// calls deliver for each byte recovered. All state (current state, bit
// counter, accumulator) persists across calls, so a stream split
// arbitrarily into multiple Push calls yields identical bytes to one
// call with the whole stream.
func (rx *UartRx) Push(in []int) {
	for _, bit := range in {
		rx.step(bit)
	}
}

func (rx *UartRx) step(bit int) {
	switch rx.st {
	case stateIdle:
		if bit == 0 {
			rx.st = stateStart
			rx.c = 1
		}

	case stateStart:
		half := rx.n / 2
		if rx.c < half {
			rx.c++
			return
		}
		if bit == 0 {
			// Start bit confirmed at the half-bit sampling point.
			rx.st = stateData
			rx.c = 0
			rx.k = 0
			rx.acc = 0
		} else {
			// False start: the line went back to mark before the
			// half-bit point, abort and resynchronize.
			rx.st = stateIdle
		}

	case stateData:
		rx.c++
		if rx.c < rx.n {
			return
		}
		rx.acc |= byte(bit) << uint(rx.k)
		if rx.k < 7 {
			rx.k++
			rx.c = 0
		} else {
			rx.st = stateStop
			rx.c = 0
		}

	case stateStop:
		rx.c++
		if rx.c < rx.n {
			return
		}
		// Emit on stop-bit expiry regardless of its value: gating on
		// stop-bit validity would drop otherwise-correct bytes under
		// heavy noise.
		rx.deliver(rx.acc)
		rx.st = stateIdle
	}
}
