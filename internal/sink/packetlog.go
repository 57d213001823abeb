// Package sink holds the outputs of the transmit and receive tasks: packet
// logs, the console statistics block, the final report and the pcap dump.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/udptool/internal/analyzer"
)

const (
	txLogHeader = "t_tx size seq"
	rxLogHeader = "t_rx size status seq t_tx errors"
)

// LogFileConfig describes a packet log file. MaxSize 0 disables rotation.
type LogFileConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// OpenLogFile opens the packet log. With rotation the file is handed to
// lumberjack; otherwise it is truncated and written directly. "-" is stdout.
func OpenLogFile(cfg LogFileConfig) (io.WriteCloser, error) {
	switch {
	case cfg.Filename == "" || cfg.Filename == "-":
		return nopCloser{os.Stdout}, nil
	case cfg.MaxSize > 0:
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}, nil
	default:
		f, err := os.Create(cfg.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file %s: %w", cfg.Filename, err)
		}
		return f, nil
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// PacketLog writes one line per packet. Timestamps are microseconds on the
// task clock. It also records missing ranges reported by the analyzer.
type PacketLog struct {
	mu  sync.Mutex
	out io.WriteCloser
	w   *bufio.Writer
	err error
}

var _ analyzer.MissingRangeObserver = (*PacketLog)(nil)

func newPacketLog(out io.WriteCloser, header, runID string) *PacketLog {
	l := &PacketLog{out: out, w: bufio.NewWriter(out)}
	if runID != "" {
		l.printf("# run %s\n", runID)
	}
	l.printf("%s\n", header)
	return l
}

// NewTxLog starts a transmit log on out.
func NewTxLog(out io.WriteCloser, runID string) *PacketLog {
	return newPacketLog(out, txLogHeader, runID)
}

// NewRxLog starts a receive log on out.
func NewRxLog(out io.WriteCloser, runID string) *PacketLog {
	return newPacketLog(out, rxLogHeader, runID)
}

func (l *PacketLog) printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return
	}
	if _, err := fmt.Fprintf(l.w, format, args...); err != nil {
		l.err = err
	}
}

// Transmitted logs a scheduled packet: tx time, size and sequence.
func (l *PacketLog) Transmitted(tTx int64, size int, seq uint32) {
	l.printf("%d %d %d\n", tTx, size, seq)
}

// Received logs an analyzed datagram.
func (l *PacketLog) Received(tRx int64, v analyzer.Verdict) {
	l.printf("%d %d %s %d %d %d\n", tRx, v.Length, v.Status, v.Sequence, v.TxTimestamp, v.Errors)
}

// OnMissingRange writes the "# missing count first last" comment line.
func (l *PacketLog) OnMissingRange(count, first, last uint32) {
	l.printf("# missing %d %d %d\n", count, first, last)
}

// Flow marks the start of a new flow from remote.
func (l *PacketLog) Flow(remote netip.AddrPort) {
	l.printf("# flow %s\n", remote)
}

// Flush writes buffered lines and returns the first write error seen.
func (l *PacketLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.err = l.w.Flush()
	return l.err
}

func (l *PacketLog) Close() error {
	err := l.Flush()
	if cerr := l.out.Close(); err == nil {
		err = cerr
	}
	return err
}
