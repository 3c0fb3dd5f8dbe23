package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a ledger notification.
type EventKind string

const (
	EventParticipationValidated EventKind = "participation_validated"
	EventMintingStatusChanged   EventKind = "minting_status_changed"
	EventMetadataUpdated        EventKind = "metadata_updated"
	EventContractURIUpdated     EventKind = "contract_uri_updated"
)

// Event is a notification about a committed state change.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Caller    common.Address `json:"caller"`
	Address   common.Address `json:"address"`            // participation only
	TokenID   uint64         `json:"token_id,omitempty"` // participation only
	Amount    string         `json:"amount,omitempty"`   // participation only
	Timestamp int64          `json:"timestamp"`
	Enabled   bool           `json:"enabled"`       // status changes only
	URI       string         `json:"uri,omitempty"` // metadata updates only
}

// Notifier receives events after the mutation that produced them has
// committed, in commit order. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}
