package pipeline

import (
	"testing"

	"github.com/kg9x/v21modem/internal/fsk"
	"github.com/stretchr/testify/require"
)

// TestLoopbackRoundTrip wires one Pipeline's FillOut straight into
// another's DrainIn (bypassing the air interface entirely) and confirms
// a submitted byte comes out the other side, exercising the same
// Submit -> FillOut -> DrainIn -> deliver path the audio callbacks
// drive in production.
func TestLoopbackRoundTrip(t *testing.T) {
	const sampleRate = 48000

	var recovered []byte
	tx := New(sampleRate, fsk.Originate, func(byte) {})
	rx := New(sampleRate, fsk.Answer, func(b byte) { recovered = append(recovered, b) })

	tx.Submit('h')
	tx.Submit('i')

	n := fsk.SamplesPerSymbol(sampleRate)
	buf := make([]float64, 10*n)

	// Run enough buffers to flush both framed bytes through.
	for i := 0; i < 4; i++ {
		tx.FillOut(buf)
		rx.DrainIn(buf)
	}

	require.Equal(t, []byte("hi"), recovered)
}

func TestPendingSamplesReflectsQueueDepth(t *testing.T) {
	const sampleRate = 48000
	p := New(sampleRate, fsk.Originate, func(byte) {})
	require.Equal(t, 0, p.PendingSamples())

	p.Submit('x')
	n := fsk.SamplesPerSymbol(sampleRate)
	require.Equal(t, 10*n, p.PendingSamples())
}
