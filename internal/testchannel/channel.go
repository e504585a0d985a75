// Package testchannel provides the noise/timing-offset channel models
// used by this repository's end-to-end tests to exercise the modem
// under impairment. None of it ships in the v21modem binary; besides the
// internal/uart and internal/fsk tests, cmd/v21tone's selftest command
// uses AWGNChannelEbN0dB.
//
// The three models are a BSC transition-burst channel, a linear
// timing-offset resample, and additive Gaussian noise sized to a target
// Eb/N0.
package testchannel

import "math"

// ApplyTimingOffset resamples y (assumed to be evenly spaced over
// [0, 1]) as if the receiver's sample period were timingOffset times the
// transmitter's: values greater than 1 mean the receiver's clock is
// slightly slow relative to the transmitter (it takes fewer output
// samples to cover the same span), values less than 1 mean it is
// slightly fast.
func ApplyTimingOffset(timingOffset float64, y []float64) []float64 {
	nxd := len(y)
	if nxd < 2 {
		return append([]float64(nil), y...)
	}

	ni := int((float64(nxd-1))/timingOffset) + 1
	out := make([]float64, ni)
	for i := 0; i < ni; i++ {
		pos := timingOffset * float64(i) // position on the original [0, nxd-1] grid
		out[i] = lerp(y, pos)
	}
	return out
}

func lerp(y []float64, pos float64) float64 {
	n := len(y)
	if pos <= 0 {
		return y[0]
	}
	if pos >= float64(n-1) {
		return y[n-1]
	}
	i0 := int(pos)
	frac := pos - float64(i0)
	return y[i0]*(1-frac) + y[i0+1]*frac
}

// BSCTransitionChannel models a binary symmetric channel that only
// corrupts bit *transitions*: on every 0<->1 edge in samples, the next
// samplesAffected samples are each independently flipped with
// probability flipProbability; away from transitions the channel is
// noiseless.
//
// timingOffset applies the same linear resampling as ApplyTimingOffset,
// then the result is re-thresholded at 0.5 back into {0,1}.
func BSCTransitionChannel(rng Source, flipProbability float64, samplesAffected int, timingOffset float64, samples []int) []int {
	n := len(samples)
	yd := make([]float64, n)

	if n == 0 {
		return nil
	}

	previous := samples[0]
	i := 0
	for i < n {
		yd[i] = float64(samples[i])
		if samples[i] != previous && samplesAffected > 0 {
			end := i + samplesAffected
			if end > n {
				end = n
			}
			for j := i; j < end; j++ {
				flip := rng.Float64() < flipProbability
				bit := samples[j] != 0
				if flip {
					bit = !bit
				}
				yd[j] = boolToFloat(bit)
			}
			i = end - 1
		}
		previous = samples[i]
		i++
	}

	yi := ApplyTimingOffset(timingOffset, yd)
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

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// AWGNChannelEbN0dB adds Gaussian noise to samples, sized so the
// resulting channel has the given Eb/N0 (dB) assuming one bit per
// symbol (so Eb == Es), then applies the same ±timing-offset resampling
// as the BSC channel. See
// https://www.mathworks.com/help/comm/ug/awgn-channel.html for the
// Eb/N0-to-noise-power derivation.
func AWGNChannelEbN0dB(rng Source, samplesPerSymbol int, ebn0Db, timingOffset float64, samples []float64) []float64 {
	snrDb := ebn0Db - 10*math.Log10(0.5*float64(samplesPerSymbol))

	sDb := 10 * math.Log10(signalAvgPower(samples))
	nDb := sDb - snrDb
	n := math.Pow(10, nDb/10)

	return AWGNChannel(rng, math.Sqrt(n), timingOffset, samples)
}

// AWGNChannel adds zero-mean Gaussian noise of the given amplitude
// (standard deviation) to samples and applies the timing-offset
// resample.
func AWGNChannel(rng Source, noiseAmplitude, timingOffset float64, samples []float64) []float64 {
	yd := make([]float64, len(samples))
	for i, s := range samples {
		yd[i] = s + noiseAmplitude*rng.NormFloat64()
	}
	return ApplyTimingOffset(timingOffset, yd)
}

func signalAvgPower(samples []float64) float64 {
	var p float64
	n := float64(len(samples))
	for _, s := range samples {
		p += s * s / n
	}
	return p
}

// Source is the minimal random source these channel models need; *rand.Rand
// from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
	NormFloat64() float64
}
