// Command v21modem is the production binary: it opens an audio duplex
// stream and a local serial endpoint, wires them together through
// internal/pipeline's V.21 modem, and optionally serves a Prometheus/
// websocket status endpoint and a terminal status screen.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/kg9x/v21modem/internal/audio"
	"github.com/kg9x/v21modem/internal/config"
	"github.com/kg9x/v21modem/internal/fsk"
	"github.com/kg9x/v21modem/internal/modemlog"
	"github.com/kg9x/v21modem/internal/monitor"
	"github.com/kg9x/v21modem/internal/pipeline"
	"github.com/kg9x/v21modem/internal/serialbridge"
	"github.com/kg9x/v21modem/internal/tui"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "v21modem:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfgPath := scanConfigFlag(args)
	cfg, err := config.Load(cfgPath, args)
	if err != nil {
		return err
	}

	logger := modemlog.New(cfg.LogLevel)

	role := fsk.Originate
	if cfg.Role == config.RoleAnswer {
		role = fsk.Answer
	}

	reg := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(reg)
	hub := monitor.NewHub()

	var bytesIn, bytesOut atomic.Uint64

	out := make(chan byte, 4096)
	deliver := func(b byte) {
		metrics.BytesOut.Inc()
		bytesOut.Add(1)
		select {
		case out <- b:
		default:
			modemlog.For(logger, modemlog.ComponentPipeline).Warn("serial write backed up, dropping byte")
		}
	}

	pipe := pipeline.New(cfg.SampleRate, role, deliver)

	if err := audio.Init(); err != nil {
		return fmt.Errorf("v21modem: %w", err)
	}
	defer audio.Terminate()

	audioLogger := modemlog.For(logger, modemlog.ComponentAudio)
	inDev, err := audio.ResolveDevice(cfg.InputDev)
	if err != nil {
		return fmt.Errorf("v21modem: %w", err)
	}
	outDev, err := audio.ResolveDevice(cfg.OutputDev)
	if err != nil {
		return fmt.Errorf("v21modem: %w", err)
	}
	duplex, err := audio.Open(audio.Config{
		SampleRate:   cfg.SampleRate,
		InputDevice:  inDev,
		OutputDevice: outDev,
	}, audioLogger)
	if err != nil {
		return fmt.Errorf("v21modem: %w", err)
	}
	duplex.Fill = pipe.FillOut
	duplex.Drain = pipe.DrainIn

	serialLogger := modemlog.For(logger, modemlog.ComponentSerial)
	endpoint, err := openEndpoint(cfg, serialLogger)
	if err != nil {
		return fmt.Errorf("v21modem: %w", err)
	}

	bridge := serialbridge.NewBridge(endpoint, func(b byte) {
		metrics.BytesIn.Inc()
		bytesIn.Add(1)
		pipe.Submit(b)
	}, serialLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var feed chan tea.Msg
	var program *tea.Program
	if cfg.TUI {
		feed = make(chan tea.Msg, 100)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := bridge.RunReader(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := bridge.RunWriter(gctx, out)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.MonitorAddr != "" {
		monitorLogger := modemlog.For(logger, modemlog.ComponentMonitor)
		srv := &http.Server{Addr: cfg.MonitorAddr, Handler: hub.Handler(reg)}
		g.Go(func() error {
			return runMonitorServer(gctx, srv, monitorLogger)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				locked := pipe.Locked()
				depth := pipe.PendingSamples()
				disagreement := pipe.DisagreementRate()

				if locked {
					metrics.LinkLocked.Set(1)
				} else {
					metrics.LinkLocked.Set(0)
				}
				metrics.TxQueueDepth.Set(float64(depth))
				metrics.BitErrorProxy.Set(disagreement)

				snap := monitor.Snapshot{
					Timestamp:     time.Now(),
					BytesIn:       bytesIn.Load(),
					BytesOut:      bytesOut.Load(),
					TxQueueDepth:  depth,
					LinkLocked:    locked,
					BitErrorProxy: disagreement,
				}
				hub.Broadcast(snap)
				if feed != nil {
					select {
					case feed <- tui.SnapshotMsg(snap):
					default:
					}
				}
			}
		}
	})

	if err := duplex.Start(); err != nil {
		return fmt.Errorf("v21modem: %w", err)
	}

	logger.Info("v21modem running", "role", cfg.Role, "sample_rate", cfg.SampleRate, "monitor_addr", cfg.MonitorAddr)

	if feed != nil {
		model := tui.NewModel(string(cfg.Role), feed)
		program = tea.NewProgram(model)
		g.Go(func() error {
			_, err := program.Run()
			stop()
			return err
		})
	}

	<-gctx.Done()

	// Audio streams are torn down before the serial endpoint; any bytes
	// still queued in UartTx at this point are dropped, not drained.
	if err := duplex.Close(); err != nil {
		logger.Warn("audio stream close failed", "err", err)
	}
	if err := endpoint.Close(); err != nil {
		logger.Warn("serial endpoint close failed", "err", err)
	}
	if program != nil {
		program.Quit()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openEndpoint(cfg config.File, logger *log.Logger) (serialbridge.Endpoint, error) {
	if cfg.SerialDev != "" {
		return serialbridge.OpenCOMPort(cfg.SerialDev)
	}
	return serialbridge.OpenPTY(cfg.SymlinkPTY, logger)
}

// runMonitorServer runs srv until ctx is canceled, then shuts it down.
func runMonitorServer(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("monitor: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("monitor server shutdown failed", "err", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// scanConfigFlag pulls --config/-c's value out of args without fully
// parsing, since config.Load needs the path before it can build the
// flag set that would otherwise recognize it.
func scanConfigFlag(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" || a == "-c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case len(a) > len("--config="):
			if a[:len("--config=")] == "--config=" {
				return a[len("--config="):]
			}
		}
	}
	return ""
}
