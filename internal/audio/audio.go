// Package audio is the sound-card adapter: it turns the portaudio
// duplex-stream callback into the plain mono float64 sample buffers
// internal/pipeline's modulator and demodulator expect, resampling
// channel counts as needed so the DSP core never has to know how many
// channels the underlying device actually has.
package audio

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

// BufferMillis is the target host-buffer latency.
const BufferMillis = 10

// FramesPerBuffer returns the frame count that yields roughly
// BufferMillis of latency at the given sample rate.
func FramesPerBuffer(sampleRate int) int {
	n := sampleRate * BufferMillis / 1000
	if n < 1 {
		n = 1
	}
	return n
}

// Device describes one enumerated portaudio endpoint, trimmed to the
// fields a CLI device picker needs.
type Device struct {
	Index      int
	Name       string
	HostAPI    string
	MaxInputs  int
	MaxOutputs int
	Default    bool
}

// ListDevices enumerates every portaudio device visible to this host,
// for a CLI device picker (`--rxdev`/`--txdev`).
func ListDevices() ([]Device, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}

	defaultIn, _ := portaudio.DefaultInputDevice()
	defaultOut, _ := portaudio.DefaultOutputDevice()

	out := make([]Device, len(devs))
	for i, d := range devs {
		isDefault := (defaultIn != nil && d.Name == defaultIn.Name) ||
			(defaultOut != nil && d.Name == defaultOut.Name)
		hostAPI := ""
		if d.HostApi != nil {
			hostAPI = d.HostApi.Name
		}
		out[i] = Device{
			Index:      i,
			Name:       d.Name,
			HostAPI:    hostAPI,
			MaxInputs:  d.MaxInputChannels,
			MaxOutputs: d.MaxOutputChannels,
			Default:    isDefault,
		}
	}
	return out, nil
}

// ResolveDevice finds the portaudio device named name. An empty name
// resolves to nil, meaning "let the host pick its default device" when
// passed to Config.
func ResolveDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}
	for _, d := range devs {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("audio: no device named %q", name)
}

// Duplex is a full-duplex audio stream: on every callback it asks Fill
// for one buffer's worth of transmit samples and hands Drain the input
// buffer it just captured, both as mono float64 in [-1,1]. Fill/Drain
// have the signatures of pipeline.Pipeline's FillOut and DrainIn, so
// those methods are assigned to them directly; neither may block,
// since the callback runs on the realtime audio thread.
//
// Capture is always a single channel; if the output device has more
// than one, the one outgoing channel is duplicated across all of them
// in the callback so a stereo-only sound card still carries the signal.
type Duplex struct {
	stream *portaudio.Stream
	logger *log.Logger

	outChannels int

	Fill  func(out []float64)
	Drain func(in []float64)

	scratchOut []float64
	scratchIn  []float64
}

// Config selects the input/output devices and sample rate for a Duplex
// stream. Nil InputDevice/OutputDevice select the host defaults.
type Config struct {
	SampleRate      int
	FramesPerBuffer int
	InputDevice     *portaudio.DeviceInfo
	OutputDevice    *portaudio.DeviceInfo
}

// Open opens (but does not start) a full-duplex stream at
// cfg.SampleRate. The caller must set Fill and Drain before calling Start.
func Open(cfg Config, logger *log.Logger) (*Duplex, error) {
	if cfg.SampleRate%300 != 0 {
		return nil, fmt.Errorf("audio: sample rate %d is not a multiple of the 300 baud symbol rate", cfg.SampleRate)
	}

	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = FramesPerBuffer(cfg.SampleRate)
	}

	outDev := cfg.OutputDevice
	if outDev == nil {
		dflt, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("audio: no default output device: %w", err)
		}
		outDev = dflt
	}
	inDev := cfg.InputDevice
	if inDev == nil {
		dflt, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("audio: no default input device: %w", err)
		}
		inDev = dflt
	}
	outChannels := outDev.MaxOutputChannels
	if outChannels < 1 {
		outChannels = 1
	}

	d := &Duplex{
		logger:      logger,
		outChannels: outChannels,
		scratchOut:  make([]float64, frames),
		scratchIn:   make([]float64, frames),
	}

	params := portaudio.LowLatencyParameters(inDev, outDev)
	params.Input.Channels = 1
	params.Output.Channels = outChannels
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = frames

	stream, err := portaudio.OpenStream(params, d.callback)
	if err != nil {
		return nil, fmt.Errorf("audio: open stream: %w", err)
	}
	d.stream = stream
	return d, nil
}

func (d *Duplex) callback(in, out []float32) {
	for i, s := range in {
		d.scratchIn[i] = float64(s)
	}
	if d.Drain != nil {
		d.Drain(d.scratchIn[:len(in)])
	}

	frames := len(out) / d.outChannels
	if d.Fill != nil {
		d.Fill(d.scratchOut[:frames])
	}
	for i := 0; i < frames; i++ {
		v := float32(d.scratchOut[i])
		for c := 0; c < d.outChannels; c++ {
			out[i*d.outChannels+c] = v
		}
	}
}

// Start begins servicing the stream's realtime callback.
func (d *Duplex) Start() error {
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("audio: start stream: %w", err)
	}
	return nil
}

// Close stops and tears down the stream.
func (d *Duplex) Close() error {
	if err := d.stream.Stop(); err != nil && d.logger != nil {
		d.logger.Warn("audio stream stop failed", "err", err)
	}
	return d.stream.Close()
}

// Init must be called once before any portaudio use (ListDevices, Open).
func Init() error {
	return portaudio.Initialize()
}

// Terminate releases portaudio's global state; call once at process exit.
func Terminate() error {
	return portaudio.Terminate()
}
