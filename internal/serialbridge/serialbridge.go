// Package serialbridge adapts the byte-oriented UART framer/deframer to
// a real local serial endpoint: a byte-oriented bidirectional stream at
// 115,200 baud, 8-N-1, raw. On Unix this is a pseudo-terminal whose
// slave name is printed at startup; on Windows, or when a specific Unix
// device is named explicitly, a COM port or device opened directly.
package serialbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	term "github.com/pkg/term"
)

// BaudRate is the fixed host-side serial speed.
const BaudRate = 115200

// Endpoint is a byte-oriented bidirectional stream: the serial event
// loop reads from it and calls UartTx.Submit for every byte, and writes
// every byte UartRx delivers.
type Endpoint interface {
	io.ReadWriter
	Close() error
}

// PTY is a Unix pseudo-terminal acting as the local serial endpoint. The
// master end is read/written by this process; SlaveName is the path a
// peer application should open.
type PTY struct {
	master    *os.File
	SlaveName string
}

// OpenPTY creates a new pseudo-terminal pair and, when symlinkPath is
// non-empty, maintains a friendly symlink to the slave, since the
// kernel-assigned pty name changes on every run.
func OpenPTY(symlinkPath string, logger *log.Logger) (*PTY, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("serialbridge: open pseudo-terminal: %w", err)
	}

	if logger != nil {
		logger.Info("virtual serial port available", "device", slave.Name())
	}

	if symlinkPath != "" {
		_ = os.Remove(symlinkPath)
		if err := os.Symlink(slave.Name(), symlinkPath); err != nil && logger != nil {
			logger.Warn("failed to create serial device symlink", "path", symlinkPath, "err", err)
		} else if logger != nil {
			logger.Info("created serial device symlink", "from", symlinkPath, "to", slave.Name())
		}
	}

	return &PTY{master: master, SlaveName: slave.Name()}, nil
}

func (p *PTY) Read(b []byte) (int, error)  { return p.master.Read(b) }
func (p *PTY) Write(b []byte) (int, error) { return p.master.Write(b) }
func (p *PTY) Close() error                { return p.master.Close() }

// COMPort is a named serial device (typically a Windows COM port, but
// also any /dev/tty* the host names explicitly), opened raw at
// BaudRate 8-N-1.
type COMPort struct {
	fd *term.Term
}

// OpenCOMPort opens device in raw mode at BaudRate.
func OpenCOMPort(device string) (*COMPort, error) {
	fd, err := term.Open(device, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("serialbridge: open %s: %w", device, err)
	}
	if err := fd.SetSpeed(BaudRate); err != nil {
		fd.Close()
		return nil, fmt.Errorf("serialbridge: set speed on %s: %w", device, err)
	}
	return &COMPort{fd: fd}, nil
}

func (c *COMPort) Read(b []byte) (int, error)  { return c.fd.Read(b) }
func (c *COMPort) Write(b []byte) (int, error) { return c.fd.Write(b) }
func (c *COMPort) Close() error                { return c.fd.Close() }

// Bridge runs the serial event loop: it reads bytes from Endpoint and
// calls Submit for each, and separately drains an outbound byte channel
// and writes to Endpoint. Transient read errors (EIO on Unix while no
// peer has the pty slave open) are retried with a short backoff and
// never surfaced.
type Bridge struct {
	ep     Endpoint
	submit func(byte)
	logger *log.Logger

	backoff time.Duration
}

// NewBridge wires an Endpoint to submit, the callback invoked for every
// byte read from the serial side (ordinarily UartTx.Submit).
func NewBridge(ep Endpoint, submit func(byte), logger *log.Logger) *Bridge {
	return &Bridge{ep: ep, submit: submit, logger: logger, backoff: 10 * time.Millisecond}
}

// RunReader reads from the endpoint until ctx is done, calling submit
// for each byte. It never returns an error for a transient condition;
// it only returns when ctx is canceled or the endpoint is closed out
// from under it.
func (b *Bridge) RunReader(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := b.ep.Read(buf)
		if n > 0 {
			for i := 0; i < n; i++ {
				b.submit(buf[i])
			}
		}
		if err != nil {
			if isTransient(err) {
				time.Sleep(b.backoff)
				continue
			}
			return fmt.Errorf("serialbridge: read: %w", err)
		}
	}
}

// RunWriter drains out, writing every byte to the endpoint, until ctx is
// done or out is closed. Write errors are treated the same as read
// errors: transient ones are retried, everything else is returned.
func (b *Bridge) RunWriter(ctx context.Context, out <-chan byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case by, ok := <-out:
			if !ok {
				return nil
			}
			for {
				_, err := b.ep.Write([]byte{by})
				if err == nil {
					break
				}
				if isTransient(err) {
					time.Sleep(b.backoff)
					continue
				}
				return fmt.Errorf("serialbridge: write: %w", err)
			}
		}
	}
}

// isTransient reports whether err is the kind of fleeting condition
// expected while no peer is attached to the pty: EIO or EAGAIN on Unix,
// silently retried rather than surfaced.
func isTransient(err error) bool {
	return errors.Is(err, syscall.EIO) || errors.Is(err, syscall.EAGAIN)
}
