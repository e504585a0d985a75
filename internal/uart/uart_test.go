package uart

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testSamplesPerSymbol = 16

// roundTrip frames bytes through UartTx, splits the resulting bit stream
// into chunks of the given sizes, and feeds those chunks through UartRx
// one at a time, as spec.md §8 scenario 1/2 requires.
func roundTrip(t *testing.T, bytesIn []byte, chunkSizes []int) []byte {
	t.Helper()

	tx := NewUartTx(testSamplesPerSymbol)
	for _, b := range bytesIn {
		tx.Submit(b)
	}

	total := tx.Pending()
	stream := make([]int, total)
	tx.Fill(stream)

	var out []byte
	rx := NewUartRx(testSamplesPerSymbol, func(b byte) {
		out = append(out, b)
	})

	pos := 0
	for _, sz := range chunkSizes {
		if pos >= len(stream) {
			break
		}
		end := pos + sz
		if end > len(stream) {
			end = len(stream)
		}
		rx.Push(stream[pos:end])
		pos = end
	}
	if pos < len(stream) {
		rx.Push(stream[pos:])
	}

	return out
}

func TestRoundTripWholeBuffer(t *testing.T) {
	in := []byte("Hello, V.21!")
	out := roundTrip(t, in, []int{1 << 20})
	require.Equal(t, in, out)
}

func TestRoundTripSplitAnywhere(t *testing.T) {
	in := []byte{0x00, 0xFF, 0x55, 0xAA, 0x13, 0x80, 0x01}
	for split := 1; split < 5; split++ {
		out := roundTrip(t, in, []int{split, 1 << 20})
		require.Equalf(t, in, out, "first chunk of %d samples", split)
	}
}

func TestRoundTripOneSampleAtATime(t *testing.T) {
	in := []byte("x")
	sizes := make([]int, 10*testSamplesPerSymbol*len(in)+10)
	for i := range sizes {
		sizes[i] = 1
	}
	out := roundTrip(t, in, sizes)
	require.Equal(t, in, out)
}

// TestRoundTripArbitraryPartition is spec.md §8's framing invariant: the
// recovered bytes must match the submitted bytes regardless of how the
// intermediate bit stream is partitioned into buffers.
func TestRoundTripArbitraryPartition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOfN(rapid.Byte(), 1, 8).Draw(t, "bytes")

		tx := NewUartTx(testSamplesPerSymbol)
		for _, b := range in {
			tx.Submit(b)
		}
		stream := make([]int, tx.Pending())
		tx.Fill(stream)

		var out []byte
		rx := NewUartRx(testSamplesPerSymbol, func(b byte) {
			out = append(out, b)
		})

		pos := 0
		for pos < len(stream) {
			remaining := len(stream) - pos
			chunk := rapid.IntRange(1, remaining).Draw(t, "chunk")
			rx.Push(stream[pos : pos+chunk])
			pos += chunk
		}

		if !bytesEqual(out, in) {
			t.Fatalf("round trip mismatch: in=%v out=%v", in, out)
		}
	})
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestIdleLineNeverFramesAByte is spec.md §8's idle invariant: a continuous
// mark (no Submit calls at all) must never produce a delivered byte,
// since an idle UART line carries no start-bit edge.
func TestIdleLineNeverFramesAByte(t *testing.T) {
	delivered := false
	rx := NewUartRx(testSamplesPerSymbol, func(byte) { delivered = true })

	idle := make([]int, 100*testSamplesPerSymbol)
	for i := range idle {
		idle[i] = 1
	}
	rx.Push(idle)

	require.False(t, delivered)
}

func TestUartTxFillPadsWithMarkWhenQueueEmpty(t *testing.T) {
	tx := NewUartTx(testSamplesPerSymbol)
	out := make([]int, 32)
	for i := range out {
		out[i] = -1
	}
	tx.Fill(out)
	for i, v := range out {
		require.Equalf(t, 1, v, "sample %d should be mark-padded", i)
	}
}
