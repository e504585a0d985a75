package uart

import (
	"math/rand/v2"
	"testing"

	"github.com/kg9x/v21modem/internal/testchannel"
	"github.com/stretchr/testify/require"
)

// framedStream submits msg through a fresh UartTx and returns its full
// bit-sample stream, preceded by leadingIdle idle (mark) samples,
// mirroring spec.md §8 scenario 1's "random bursts ... separated by
// random idle samples".
func framedStream(n int, msg []byte, leadingIdle int) []int {
	tx := NewUartTx(n)
	idle := make([]int, leadingIdle)
	for i := range idle {
		idle[i] = 1
	}
	for _, b := range msg {
		tx.Submit(b)
	}
	out := make([]int, tx.Pending())
	tx.Fill(out)
	return append(idle, out...)
}

func decodeAll(n int, bits []int) []byte {
	var out []byte
	rx := NewUartRx(n, func(b byte) { out = append(out, b) })
	rx.Push(bits)
	return out
}

func randomMessage(rng *rand.Rand, minLen, maxLen int) []byte {
	size := minLen + rng.IntN(maxLen-minLen+1)
	msg := make([]byte, size)
	for i := range msg {
		msg[i] = byte(rng.IntN(256))
	}
	return msg
}

// TestScenario1TrivialUART is spec.md §8 scenario 1: random bursts of
// 1-99 bytes separated by random idle samples, Fs=48000, no noise.
func TestScenario1TrivialUART(t *testing.T) {
	const n = 160 // Fs=48000
	rng := rand.New(rand.NewPCG(1, 1))

	for i := 0; i < 100; i++ {
		msg := randomMessage(rng, 1, 99)
		idle := rng.IntN(n)
		bits := framedStream(n, msg, idle)
		got := decodeAll(n, bits)
		require.Equalf(t, msg, got, "iteration %d", i)
	}
}

// TestScenario2UnsyncedUART is spec.md §8 scenario 2: as scenario 1 but
// Fs=44100 with a clock offset uniform in [0.98, 1.02].
func TestScenario2UnsyncedUART(t *testing.T) {
	const n = 147 // Fs=44100
	rng := rand.New(rand.NewPCG(2, 2))

	for i := 0; i < 100; i++ {
		msg := randomMessage(rng, 1, 99)
		idle := rng.IntN(n)
		bits := framedStream(n, msg, idle)

		offset := 0.98 + 0.04*rng.Float64()
		skewed := applyOffsetToBits(offset, bits)

		got := decodeAll(n, skewed)
		require.Equalf(t, msg, got, "iteration %d, offset %v", i, offset)
	}
}

// TestScenario3NoisyUART is spec.md §8 scenario 3: on every bit
// transition, corrupt up to N/4 samples with a BSC flip probability of
// 0.5, Fs=48000. Recovery is exact because UartRx samples each bit at its
// mid-bit instant, which sits a full
// N/4 samples clear of the corrupted span following any transition.
func TestScenario3NoisyUART(t *testing.T) {
	const n = 160
	rng := rand.New(rand.NewPCG(3, 3))

	for i := 0; i < 100; i++ {
		msg := randomMessage(rng, 1, 99)
		idle := rng.IntN(n)
		bits := framedStream(n, msg, idle)

		noisy := testchannel.BSCTransitionChannel(rng, 0.5, n/4, 1.0, bits)

		got := decodeAll(n, noisy)
		require.Equalf(t, msg, got, "iteration %d", i)
	}
}

// TestScenario4NoisyUnsyncedUART is spec.md §8 scenario 4: combine
// scenarios 2 and 3, Fs=44100.
func TestScenario4NoisyUnsyncedUART(t *testing.T) {
	const n = 147
	rng := rand.New(rand.NewPCG(4, 4))

	for i := 0; i < 100; i++ {
		msg := randomMessage(rng, 1, 99)
		idle := rng.IntN(n)
		bits := framedStream(n, msg, idle)

		offset := 0.98 + 0.04*rng.Float64()
		noisy := testchannel.BSCTransitionChannel(rng, 0.5, n/4, offset, bits)

		got := decodeAll(n, noisy)
		require.Equalf(t, msg, got, "iteration %d, offset %v", i, offset)
	}
}

func applyOffsetToBits(offset float64, bits []int) []int {
	yd := make([]float64, len(bits))
	for i, b := range bits {
		yd[i] = float64(b)
	}
	yi := testchannel.ApplyTimingOffset(offset, yd)
	out := make([]int, len(yi))
	for i, v := range yi {
		if v > 0.5 {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out
}
