package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

const defaultProofCacheSize = 4096

// Clock returns the current time. It is read once per mutating call.
type Clock func() time.Time

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock used to timestamp mutations.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithNotifier sets the notifier that receives committed events.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// WithProofCacheSize sets how many latched proofs are cached in memory.
// Zero disables the cache.
func WithProofCacheSize(n int) Option {
	return func(l *Ledger) { l.cacheSize = n }
}

// Ledger is the supply-capped mint ledger. Mutations are serialised by an
// internal mutex and each runs in one Store.Update transaction.
type Ledger struct {
	mu        sync.Mutex // serialises mutations and their notifications
	store     Store
	clock     Clock
	notifier  Notifier
	cacheSize int
	proofs    *lru.Cache[common.Address, int64] // latched proofs only; nil = disabled
	logger    *zap.Logger
}

// Open returns a Ledger over store. When the store holds no state yet the
// genesis state is written; otherwise the persisted state is kept.
func Open(ctx context.Context, store Store, genesis Genesis, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:     store,
		clock:     time.Now,
		notifier:  nopNotifier{},
		cacheSize: defaultProofCacheSize,
		logger:    logger,
	}
	for _, o := range opts {
		o(l)
	}

	if l.cacheSize > 0 {
		cache, err := lru.New[common.Address, int64](l.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create proof cache: %w", err)
		}
		l.proofs = cache
	}

	err := store.Update(ctx, func(tx Tx) error {
		st, err := tx.State(ctx)
		switch {
		case err == nil:
			if genesis.Owner != (common.Address{}) && st.Owner != genesis.Owner {
				logger.Warn("persisted owner differs from configured owner; keeping persisted owner",
					zap.String("persisted", st.Owner.Hex()),
					zap.String("configured", genesis.Owner.Hex()),
				)
			}
			return nil
		case errors.Is(err, ErrNoState):
			if genesis.Owner == (common.Address{}) {
				return fmt.Errorf("genesis owner: %w", ErrZeroAddress)
			}
			logger.Info("writing ledger genesis state",
				zap.String("owner", genesis.Owner.Hex()),
				zap.String("base_uri", genesis.BaseURI),
			)
			return tx.PutState(ctx, genesis.state())
		default:
			return fmt.Errorf("load state: %w", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return l, nil
}

// MintSingle credits amount units to to.
//
// Checks run in order and the first failure wins: owner, enabled, non-zero
// recipient, cap. A nil amount is treated as zero.
func (l *Ledger) MintSingle(ctx context.Context, caller, to common.Address, amount *uint256.Int) (*Receipt, error) {
	return l.mint(ctx, "mint_single", caller, []common.Address{to}, []*uint256.Int{amount}, true)
}

// MintBatch credits amounts[i] to recipients[i] for every i, in order.
//
// The cap is checked once against the sum of amounts before any recipient is
// credited. A zero recipient anywhere fails the whole batch.
func (l *Ledger) MintBatch(ctx context.Context, caller common.Address, recipients []common.Address, amounts []*uint256.Int) (*Receipt, error) {
	return l.mint(ctx, "mint_batch", caller, recipients, amounts, false)
}

func (l *Ledger) mint(
	ctx context.Context,
	op string,
	caller common.Address,
	recipients []common.Address,
	amounts []*uint256.Int,
	recipientFirst bool,
) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock().UTC().Unix()
	var (
		events  []Event
		receipt *Receipt
	)

	err := l.store.Update(ctx, func(tx Tx) error {
		events = events[:0]

		st, err := tx.State(ctx)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		if err := Authorize(st.Owner, caller); err != nil {
			return err
		}
		if !st.MintingEnabled {
			return ErrMintingDisabled
		}
		if len(recipients) != len(amounts) {
			return ErrLengthMismatch
		}
		if recipientFirst {
			if err := checkRecipients(recipients); err != nil {
				return err
			}
		}

		sum, overflow := sumAmounts(amounts)
		newTotal, err := checkCap(st.TotalMinted, sum, overflow)
		if err != nil {
			return err
		}
		if err := checkRecipients(recipients); err != nil {
			return err
		}

		// A zero proof means "never credited", so it cannot be latched.
		if now <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidTimestamp, now)
		}

		r := &Receipt{Timestamp: now, Amount: newTotal - st.TotalMinted, TotalMinted: newTotal}
		for i, to := range recipients {
			amt := amountOrZero(amounts[i])
			if err := tx.Credit(ctx, to, TokenID, amt); err != nil {
				return fmt.Errorf("credit %s: %w", to.Hex(), err)
			}
			latched, err := tx.LatchProof(ctx, to, now)
			if err != nil {
				return fmt.Errorf("latch proof %s: %w", to.Hex(), err)
			}
			if latched {
				r.Latched = append(r.Latched, to)
			}
			events = append(events, Event{
				Kind:      EventParticipationValidated,
				Caller:    caller,
				Address:   to,
				TokenID:   TokenID,
				Amount:    amt.Dec(),
				Timestamp: now,
			})
		}

		st.TotalMinted = newTotal
		if err := tx.PutState(ctx, st); err != nil {
			return fmt.Errorf("store state: %w", err)
		}
		receipt = r
		return nil
	})
	if err != nil {
		l.logRejected(op, caller, err)
		return nil, err
	}

	if l.proofs != nil {
		for _, addr := range receipt.Latched {
			l.proofs.Add(addr, now)
		}
	}

	l.logger.Info("mint committed",
		zap.String("op", op),
		zap.String("caller", caller.Hex()),
		zap.Int("recipients", len(recipients)),
		zap.Uint64("amount", receipt.Amount),
		zap.Uint64("total_minted", receipt.TotalMinted),
	)
	l.dispatch(ctx, events)
	return receipt, nil
}

// SetMintingEnabled opens or closes the mint gate. Owner only.
func (l *Ledger) SetMintingEnabled(ctx context.Context, caller common.Address, enabled bool) error {
	return l.mutateState(ctx, "set_minting_enabled", caller, func(st *State, now int64) Event {
		st.MintingEnabled = enabled
		return Event{Kind: EventMintingStatusChanged, Caller: caller, Enabled: enabled, Timestamp: now}
	})
}

// SetBaseURI replaces the metadata base URI. Owner only.
func (l *Ledger) SetBaseURI(ctx context.Context, caller common.Address, uri string) error {
	return l.mutateState(ctx, "set_base_uri", caller, func(st *State, now int64) Event {
		st.BaseURI = uri
		return Event{Kind: EventMetadataUpdated, Caller: caller, URI: uri, Timestamp: now}
	})
}

// SetContractURI replaces the contract-level metadata URI. Owner only.
func (l *Ledger) SetContractURI(ctx context.Context, caller common.Address, uri string) error {
	return l.mutateState(ctx, "set_contract_uri", caller, func(st *State, now int64) Event {
		st.ContractURI = uri
		return Event{Kind: EventContractURIUpdated, Caller: caller, URI: uri, Timestamp: now}
	})
}

// mutateState runs an owner-only change to the singleton state.
func (l *Ledger) mutateState(ctx context.Context, op string, caller common.Address, apply func(st *State, now int64) Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock().UTC().Unix()
	var ev Event
	err := l.store.Update(ctx, func(tx Tx) error {
		st, err := tx.State(ctx)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		if err := Authorize(st.Owner, caller); err != nil {
			return err
		}
		ev = apply(&st, now)
		if err := tx.PutState(ctx, st); err != nil {
			return fmt.Errorf("store state: %w", err)
		}
		return nil
	})
	if err != nil {
		l.logRejected(op, caller, err)
		return err
	}

	l.logger.Info("ledger state updated", zap.String("op", op), zap.String("caller", caller.Hex()))
	l.dispatch(ctx, []Event{ev})
	return nil
}

// dispatch hands committed events to the notifier. The mutation has already
// committed, so a cancelled request must not stop its notifications.
func (l *Ledger) dispatch(ctx context.Context, events []Event) {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		l.notifier.Notify(ctx, ev)
	}
}

func (l *Ledger) logRejected(op string, caller common.Address, err error) {
	if isRejection(err) {
		l.logger.Debug("ledger operation rejected",
			zap.String("op", op),
			zap.String("caller", caller.Hex()),
			zap.Error(err),
		)
		return
	}
	l.logger.Error("ledger operation failed",
		zap.String("op", op),
		zap.String("caller", caller.Hex()),
		zap.Error(err),
	)
}

// isRejection reports whether err is a validation failure rather than a
// store fault.
func isRejection(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrMintingDisabled) ||
		errors.Is(err, ErrZeroAddress) ||
		errors.Is(err, ErrSupplyCapExceeded) ||
		errors.Is(err, ErrLengthMismatch)
}

func checkRecipients(recipients []common.Address) error {
	for _, to := range recipients {
		if to == (common.Address{}) {
			return ErrZeroAddress
		}
	}
	return nil
}

// sumAmounts adds amounts without wrapping; overflow is reported instead.
func sumAmounts(amounts []*uint256.Int) (*uint256.Int, bool) {
	sum := new(uint256.Int)
	for _, a := range amounts {
		if a == nil {
			continue
		}
		if _, overflow := sum.AddOverflow(sum, a); overflow {
			return nil, true
		}
	}
	return sum, false
}

// checkCap returns the new running total, or a *SupplyCapError if adding sum
// to minted would pass SupplyCap.
func checkCap(minted uint64, sum *uint256.Int, overflow bool) (uint64, error) {
	remaining := remainingAfter(minted)
	if overflow {
		return 0, &SupplyCapError{Minted: minted, Remaining: remaining}
	}
	if sum.Gt(uint256.NewInt(remaining)) {
		return 0, &SupplyCapError{Requested: sum, Minted: minted, Remaining: remaining}
	}
	return minted + sum.Uint64(), nil
}

func amountOrZero(a *uint256.Int) *uint256.Int {
	if a == nil {
		return new(uint256.Int)
	}
	return a
}
