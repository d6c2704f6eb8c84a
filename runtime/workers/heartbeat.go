package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

const DefaultHeartbeatInterval = 30 * time.Second

// Counter reports how many clients are currently connected.
type Counter interface {
	Len() int
}

// Heartbeat is one sample of the server process health.
type Heartbeat struct {
	RSS     uint64
	CPU     float64
	Clients int
}

// HeartbeatWorker periodically logs memory, cpu and the number of connected clients.
type HeartbeatWorker struct {
	log      *slog.Logger
	clients  Counter
	interval time.Duration
	pid      int32
	beats    chan<- Heartbeat
}

func NewHeartbeatWorker(log *slog.Logger, clients Counter, interval time.Duration) *HeartbeatWorker {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &HeartbeatWorker{
		log:      log,
		clients:  clients,
		interval: interval,
		pid:      int32(os.Getpid()),
	}
}

// WithSamples also publishes every sample on beats, never blocking.
func (w *HeartbeatWorker) WithSamples(beats chan<- Heartbeat) *HeartbeatWorker {
	w.beats = beats
	return w
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping heartbeat")
			return nil
		case <-ticker.C:
			beat, err := w.sample(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			w.log.Info("Heartbeat", "clients", beat.Clients, "rss_bytes", beat.RSS, "cpu_percent", beat.CPU)
			if w.beats != nil {
				select {
				case w.beats <- beat:
				default:
				}
			}
		}
	}
}

func (w *HeartbeatWorker) sample(p *process.Process) (Heartbeat, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return Heartbeat{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return Heartbeat{}, err
	}
	return Heartbeat{RSS: memInfo.RSS, CPU: cpu, Clients: w.clients.Len()}, nil
}
