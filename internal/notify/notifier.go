// Package notify delivers committed ledger events to logs, the audit chain
// and webhook subscribers.
package notify

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
)

// Fanout forwards each event to every notifier in order.
type Fanout []ledger.Notifier

// Notify implements ledger.Notifier.
func (f Fanout) Notify(ctx context.Context, ev ledger.Event) {
	for _, n := range f {
		n.Notify(ctx, ev)
	}
}

// LogNotifier writes events to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier backed by the given logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements ledger.Notifier.
func (n *LogNotifier) Notify(_ context.Context, ev ledger.Event) {
	fields := []zap.Field{
		zap.String("kind", string(ev.Kind)),
		zap.String("caller", ev.Caller.Hex()),
		zap.Int64("timestamp", ev.Timestamp),
	}
	switch ev.Kind {
	case ledger.EventParticipationValidated:
		fields = append(fields,
			zap.String("to", ev.Address.Hex()),
			zap.Uint64("token_id", ev.TokenID),
			zap.String("amount", ev.Amount),
		)
	case ledger.EventMintingStatusChanged:
		fields = append(fields, zap.Bool("enabled", ev.Enabled))
	default:
		fields = append(fields, zap.String("uri", ev.URI))
	}
	n.logger.Info("ledger event", fields...)
}

// subjectOf returns the address an event is about, or "" for state events.
func subjectOf(ev ledger.Event) string {
	if ev.Address == (common.Address{}) {
		return ""
	}
	return ev.Address.Hex()
}
