package runtime

import (
	"log/slog"
	"secure-chat/contract"
	"secure-chat/domain"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IBroadcaster = (*Broadcaster)(nil)

// Broadcaster delivers a message to every registered channel but the sender.
//
// Delivery is best effort. Writes to distinct receivers run concurrently and
// each one is bounded by the receiver's write deadline, so a stalled peer costs
// the sender at most one write timeout. Publish returns once every write has
// completed, which keeps per sender FIFO towards each receiver.
type Broadcaster struct {
	log      *slog.Logger
	registry contract.IRegistry
}

func NewBroadcaster(log *slog.Logger, registry contract.IRegistry) *Broadcaster {
	return &Broadcaster{log: log, registry: registry}
}

// Publish sends msg to all members except excludeID.
// Receivers whose write fails are removed from the registry and closed,
// without aborting delivery to the others.
func (b *Broadcaster) Publish(msg domain.Message, excludeID string) domain.FanoutReport {
	targets := lo.Filter(b.registry.Snapshot(), func(e contract.Entry, _ int) bool {
		return e.ID != excludeID
	})
	if len(targets) == 0 {
		return domain.FanoutReport{}
	}

	frame := msg.Frame()
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = target.Channel.Write(frame)
		}()
	}
	wg.Wait()

	var report domain.FanoutReport
	for i, target := range targets {
		if errs[i] == nil {
			report.Delivered++
			continue
		}
		report.Failed = append(report.Failed, target.ID)
		b.drop(target, errs[i])
	}
	return report
}

func (b *Broadcaster) drop(target contract.Entry, cause error) {
	if !b.registry.Remove(target.ID) {
		// Already gone: its handler or another fan-out got there first.
		return
	}
	b.log.Warn("Receiver dropped after failed delivery",
		"conn_id", target.ID,
		"remote", target.Channel.RemoteAddr(),
		"error", cause)
	_ = target.Channel.Close()
}
