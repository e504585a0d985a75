package fsk

import (
	"math"
	"math/bits"
	"math/rand/v2"
	"testing"

	"github.com/kg9x/v21modem/internal/testchannel"
	"github.com/kg9x/v21modem/internal/uart"
	"github.com/stretchr/testify/require"
)

// TestPhaseContinuityAcrossBufferBoundaries is spec.md §8's phase
// continuity invariant: sin(phi) must never jump by more than
// Ts*max(omega_mark,omega_space) from one sample to the next, including
// across the boundary between two separate Modulate calls.
func TestPhaseContinuityAcrossBufferBoundaries(t *testing.T) {
	const sampleRate = 48000
	tones := TxTones(Originate)
	tx := NewV21Tx(sampleRate, tones)
	ts := 1.0 / float64(sampleRate)
	maxStep := ts * math.Max(tones.OmegaMark(), tones.OmegaSpace()) * 1.05 // small slack for sin's own slope

	bitstream := make([]int, 2000)
	for i := range bitstream {
		if i%37 < 19 {
			bitstream[i] = 1
		}
	}

	// Split arbitrarily into several Modulate calls and confirm no sample
	// ever differs from its neighbor by more than a continuous oscillator
	// stepping at worst-case angular frequency could produce.
	out := make([]float64, len(bitstream))
	splits := []int{17, 256, 1, 900, 826}
	pos := 0
	for _, sz := range splits {
		end := pos + sz
		if end > len(bitstream) {
			end = len(bitstream)
		}
		tx.Modulate(bitstream[pos:end], out[pos:end])
		pos = end
	}
	if pos < len(bitstream) {
		tx.Modulate(bitstream[pos:], out[pos:])
	}

	for i := 1; i < len(out); i++ {
		require.LessOrEqualf(t, math.Abs(out[i]-out[i-1]), maxStep, "discontinuity at sample %d", i)
	}
}

// TestModulateDeterministicUnderPartitioning is spec.md §8's V21Rx
// determinism invariant, exercised on the modulator side: splitting an
// identical bit stream into different Modulate call boundaries must not
// change the output waveform.
func TestModulateDeterministicUnderPartitioning(t *testing.T) {
	const sampleRate = 44100
	tones := TxTones(Answer)

	bitstream := make([]int, 3000)
	rng := rand.New(rand.NewPCG(7, 7))
	for i := range bitstream {
		bitstream[i] = rng.IntN(2)
	}

	whole := make([]float64, len(bitstream))
	NewV21Tx(sampleRate, tones).Modulate(bitstream, whole)

	split := make([]float64, len(bitstream))
	tx := NewV21Tx(sampleRate, tones)
	tx.Modulate(bitstream[:1234], split[:1234])
	tx.Modulate(bitstream[1234:2500], split[1234:2500])
	tx.Modulate(bitstream[2500:], split[2500:])

	for i := range whole {
		require.InDeltaf(t, whole[i], split[i], 1e-12, "sample %d", i)
	}
}

// TestDemodulateDeterministicUnderPartitioning is spec.md §8's V21Rx
// determinism invariant directly: given identical input samples, the
// demodulator must yield identical hard decisions regardless of how the
// input was split into Demodulate calls.
func TestDemodulateDeterministicUnderPartitioning(t *testing.T) {
	const sampleRate = 48000
	txTones := TxTones(Originate)
	rxTones := RxTones(Answer) // Answer listens to Originate's tones

	bitstream := make([]int, 4000)
	rng := rand.New(rand.NewPCG(9, 9))
	for i := range bitstream {
		bitstream[i] = rng.IntN(2)
	}

	samples := make([]float64, len(bitstream))
	NewV21Tx(sampleRate, txTones).Modulate(bitstream, samples)

	whole := make([]int, len(samples))
	NewV21Rx(sampleRate, rxTones).Demodulate(samples, whole)

	split := make([]int, len(samples))
	rx := NewV21Rx(sampleRate, rxTones)
	rx.Demodulate(samples[:1700], split[:1700])
	rx.Demodulate(samples[1700:], split[1700:])

	require.Equal(t, whole, split)
}

// berHarness ports original_source/tests/test.rs's
// compute_v21_ber_on_direction: frame a random message through UartTx,
// modulate, add AWGN sized to ebn0Db, optionally apply a ±2% timing
// offset, demodulate (split at a random cut point to exercise state
// preservation across the Demodulate boundary, per spec.md §8's "Each
// scenario cuts the received sample buffer at a random position"),
// deframe, and return the bit error rate between the recovered and
// original byte sequences (missing/extra bytes count as a mismatch
// against 0, matching the reference harness).
func berHarness(t *testing.T, sampleRate int, ebn0Db float64, withTimingOffset bool, iterations int) float64 {
	t.Helper()

	n := SamplesPerSymbol(sampleRate)
	tones := TxTones(Originate)

	rng := rand.New(rand.NewPCG(42, 42))

	var meanBER float64
	for iter := 0; iter < iterations; iter++ {
		idleSamples := 2*n + rng.IntN(2*n)
		msgBytes := 1 + rng.IntN(99)

		origMsg := make([]byte, msgBytes)
		for i := range origMsg {
			origMsg[i] = byte(rng.IntN(256))
		}

		tx := uart.NewUartTx(n)
		idleEnd := 2 * n
		total := idleSamples + 10*n*msgBytes + idleEnd
		uartOut := make([]int, total)
		tx.Fill(uartOut[:idleSamples])
		for _, b := range origMsg {
			tx.Submit(b)
		}
		tx.Fill(uartOut[idleSamples:])

		modulated := make([]float64, total)
		NewV21Tx(sampleRate, tones).Modulate(uartOut, modulated)

		timingOffset := 1.0
		if withTimingOffset {
			timingOffset = 0.98 + 0.04*rng.Float64()
		}
		received := testchannel.AWGNChannelEbN0dB(rng, n, ebn0Db, timingOffset, modulated)

		cut := 1
		if len(received) > 2 {
			cut = 1 + rng.IntN(len(received)-2)
		}

		var recovered []byte
		rx := NewV21Rx(sampleRate, tones)
		deframer := uart.NewUartRx(n, func(b byte) { recovered = append(recovered, b) })

		uartIn := make([]int, cut)
		rx.Demodulate(received[:cut], uartIn)
		deframer.Push(uartIn)

		uartIn2 := make([]int, len(received)-cut)
		rx.Demodulate(received[cut:], uartIn2)
		deframer.Push(uartIn2)

		maxSize := msgBytes
		if len(recovered) > maxSize {
			maxSize = len(recovered)
		}

		var bitErrors int
		for i := 0; i < maxSize; i++ {
			var a, b byte
			if i < len(recovered) {
				a = recovered[i]
			}
			if i < msgBytes {
				b = origMsg[i]
			}
			bitErrors += bits.OnesCount8(a ^ b)
		}

		ber := float64(bitErrors) / (8 * float64(maxSize))
		meanBER += ber / float64(iterations)
	}

	return meanBER
}

// TestScenario5V21CoherentChain is spec.md §8 scenario 5.
func TestScenario5V21CoherentChain(t *testing.T) {
	cases := []struct {
		ebn0Db float64
		maxBER float64
	}{
		{10, 0.1},
		{12, 0.01},
		{16, 0.001},
		{19, 1e-5},
	}
	for _, c := range cases {
		ber := berHarness(t, 48000, c.ebn0Db, false, 50)
		require.LessOrEqualf(t, ber, c.maxBER, "Eb/N0=%v dB", c.ebn0Db)
	}
}

// TestScenario6V21WithTimingOffset is spec.md §8 scenario 6.
func TestScenario6V21WithTimingOffset(t *testing.T) {
	cases := []struct {
		ebn0Db float64
		maxBER float64
	}{
		{10, 0.1},
		{12, 0.01},
		{16, 0.001},
		{19, 1e-5},
	}
	for _, c := range cases {
		ber := berHarness(t, 44100, c.ebn0Db, true, 50)
		require.LessOrEqualf(t, ber, c.maxBER, "Eb/N0=%v dB", c.ebn0Db)
	}
}
