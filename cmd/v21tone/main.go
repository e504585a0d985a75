// Command v21tone is a standalone self-test utility: it can emit a raw
// PCM file of one continuous mark or space tone so a scope or a second instance of v21modem
// can be pointed at it, or run an in-process loopback BER check without
// any audio hardware at all.
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kg9x/v21modem/internal/fsk"
	"github.com/kg9x/v21modem/internal/testchannel"
	"github.com/kg9x/v21modem/internal/uart"
)

var version = "dev"

// CLI is v21tone's command set.
type CLI struct {
	Version bool `short:"v" help:"Show version information."`

	Tone struct {
		Role    string  `enum:"originate,answer" default:"originate" help:"Tone pair to emit."`
		Symbol  string  `enum:"mark,space" default:"mark" help:"Which tone of the pair."`
		Seconds float64 `default:"1" help:"Duration in seconds."`
		Rate    int     `default:"48000" help:"Sample rate, must be a multiple of 300."`
		Out     string  `arg:"" name:"file" type:"path" help:"Output file for raw little-endian float32 PCM samples."`
	} `cmd:"" help:"Emit a single continuous tone to a raw PCM file."`

	Selftest struct {
		Rate         int   `default:"48000" help:"Sample rate, must be a multiple of 300."`
		EbN0         []int `default:"10,12,16,19" help:"Eb/N0 values in dB to test."`
		TimingOffset bool  `help:"Apply a random +/-2%% timing offset each iteration."`
		Iterations   int   `default:"50" help:"Iterations averaged per Eb/N0 value."`
	} `cmd:"" help:"Run an in-process AWGN loopback BER check, no audio hardware required."`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("v21tone"),
		kong.Description("V.21 modem tone generator and loopback self-test."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if cli.Version {
		fmt.Println("v21tone", version)
		os.Exit(0)
	}

	switch ctx.Command() {
	case "tone <file>":
		if err := runTone(cli); err != nil {
			fmt.Fprintln(os.Stderr, "v21tone:", err)
			os.Exit(1)
		}
	case "selftest":
		if err := runSelftest(cli); err != nil {
			fmt.Fprintln(os.Stderr, "v21tone:", err)
			os.Exit(1)
		}
	default:
		ctx.PrintUsage(false)
		os.Exit(1)
	}
}

func runTone(cli *CLI) error {
	rate := cli.Tone.Rate
	if rate <= 0 || rate%300 != 0 {
		return fmt.Errorf("sample rate %d is not a positive multiple of 300", rate)
	}

	role := fsk.Originate
	if cli.Tone.Role == "answer" {
		role = fsk.Answer
	}
	tones := fsk.TxTones(role)

	bit := 1
	if cli.Tone.Symbol == "space" {
		bit = 0
	}

	n := int(cli.Tone.Seconds * float64(rate))
	in := make([]int, n)
	for i := range in {
		in[i] = bit
	}
	out := make([]float64, n)
	fsk.NewV21Tx(rate, tones).Modulate(in, out)

	f, err := os.Create(cli.Tone.Out)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 4*len(out))
	for i, s := range out {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(s)))
	}
	_, err = f.Write(buf)
	return err
}

func runSelftest(cli *CLI) error {
	rate := cli.Selftest.Rate
	if rate <= 0 || rate%300 != 0 {
		return fmt.Errorf("sample rate %d is not a positive multiple of 300", rate)
	}
	n := fsk.SamplesPerSymbol(rate)
	tones := fsk.TxTones(fsk.Originate)
	rng := rand.New(rand.NewPCG(42, 42))

	for _, ebn0 := range cli.Selftest.EbN0 {
		var meanBER float64
		for iter := 0; iter < cli.Selftest.Iterations; iter++ {
			msgBytes := 1 + rng.IntN(99)
			origMsg := make([]byte, msgBytes)
			for i := range origMsg {
				origMsg[i] = byte(rng.IntN(256))
			}

			tx := uart.NewUartTx(n)
			idle := 2 * n
			total := idle + 10*n*msgBytes + idle
			uartOut := make([]int, total)
			tx.Fill(uartOut[:idle])
			for _, b := range origMsg {
				tx.Submit(b)
			}
			tx.Fill(uartOut[idle:])

			modulated := make([]float64, total)
			fsk.NewV21Tx(rate, tones).Modulate(uartOut, modulated)

			timingOffset := 1.0
			if cli.Selftest.TimingOffset {
				timingOffset = 0.98 + 0.04*rng.Float64()
			}
			received := testchannel.AWGNChannelEbN0dB(rng, n, float64(ebn0), timingOffset, modulated)

			var recovered []byte
			rx := fsk.NewV21Rx(rate, tones)
			deframer := uart.NewUartRx(n, func(b byte) { recovered = append(recovered, b) })
			decisions := make([]int, len(received))
			rx.Demodulate(received, decisions)
			deframer.Push(decisions)

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
			meanBER += float64(bitErrors) / (8 * float64(maxSize)) / float64(cli.Selftest.Iterations)
		}
		fmt.Printf("Eb/N0 = %d dB, BER = %g\n", ebn0, meanBER)
	}
	return nil
}
