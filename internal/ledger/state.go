package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State is the singleton issuance state. Proofs and balances are stored
// beside it and addressed individually through a Tx.
type State struct {
	Owner          common.Address `json:"owner"`
	TotalMinted    uint64         `json:"total_minted"`
	MintingEnabled bool           `json:"minting_enabled"`
	BaseURI        string         `json:"base_uri"`
	ContractURI    string         `json:"contract_uri"`
}

// Genesis holds the deployment-time values written the first time a store is
// opened. An already initialised store keeps its persisted state.
type Genesis struct {
	Owner       common.Address
	BaseURI     string
	ContractURI string
}

func (g Genesis) state() State {
	return State{
		Owner:          g.Owner,
		MintingEnabled: true,
		BaseURI:        g.BaseURI,
		ContractURI:    g.ContractURI,
	}
}

// Progress reports how much of the supply has been issued.
// Minted + Remaining always equals Cap.
type Progress struct {
	Minted    uint64 `json:"minted"`
	Remaining uint64 `json:"remaining"`
	Cap       uint64 `json:"cap"`
}

// Proof is the sovereign proof of an address. Timestamp is zero when the
// address has never been credited; Delta is Timestamp - ReferenceEpoch.
type Proof struct {
	Address   common.Address
	Timestamp int64
	Delta     int64
	Balance   *uint256.Int
}

// Validated reports whether the proof has been latched.
func (p Proof) Validated() bool { return p.Timestamp != 0 }

// Receipt describes a committed mint operation.
type Receipt struct {
	Timestamp   int64
	Amount      uint64           // units added by this operation
	TotalMinted uint64           // running total after commit
	Latched     []common.Address // recipients whose proof this operation set
}

func progressOf(minted uint64) Progress {
	return Progress{Minted: minted, Remaining: remainingAfter(minted), Cap: SupplyCap}
}

func remainingAfter(minted uint64) uint64 {
	if minted >= SupplyCap {
		return 0
	}
	return SupplyCap - minted
}
