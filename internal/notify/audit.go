package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/jmerrifield20/SovereignLedger/internal/auditlog"
	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
)

// AuditNotifier appends every event to an audit log. Append failures are
// logged and never reach the ledger.
type AuditNotifier struct {
	log      auditlog.Log
	onAppend func()
	logger   *zap.Logger
}

// NewAuditNotifier creates an AuditNotifier writing to log.
func NewAuditNotifier(log auditlog.Log, logger *zap.Logger) *AuditNotifier {
	return &AuditNotifier{log: log, logger: logger}
}

// SetAppendRecorder configures a callback run after each successful append.
func (n *AuditNotifier) SetAppendRecorder(fn func()) {
	n.onAppend = fn
}

// Notify implements ledger.Notifier.
func (n *AuditNotifier) Notify(ctx context.Context, ev ledger.Event) {
	entry, err := n.log.Append(ctx, string(ev.Kind), subjectOf(ev), ev.Caller.Hex(), ev)
	if err != nil {
		n.logger.Error("audit: append event",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
		return
	}
	if n.onAppend != nil {
		n.onAppend()
	}
	n.logger.Debug("audit: event appended",
		zap.Int("idx", entry.Index),
		zap.String("hash", entry.Hash),
	)
}
