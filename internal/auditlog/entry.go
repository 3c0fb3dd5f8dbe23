package auditlog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenesisHash is the fixed hash of the genesis entry and the anchor of the chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// genesisActor is recorded as the actor of the genesis entry.
const genesisActor = "sovereign-ledger"

// Entry is one audit record.
type Entry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`    // ledger event kind, or "genesis"
	Subject   string    `json:"subject"` // affected address, empty for state events
	Actor     string    `json:"actor"`   // caller address
	DataHash  string    `json:"data_hash"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// hashEntry computes the chained hash of a non-genesis entry.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Kind, e.Subject, e.Actor, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// verifyChain checks a run of entries ordered by index. prev is the entry
// before entries[0], or nil when entries starts at genesis.
func verifyChain(prev *Entry, entries []*Entry) error {
	for _, curr := range entries {
		if prev == nil {
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
			}
			prev = curr
			continue
		}
		if curr.PrevHash != prev.Hash {
			return fmt.Errorf("hash chain broken at index %d", curr.Index)
		}
		if curr.Hash != hashEntry(curr) {
			return fmt.Errorf("entry %d has invalid hash", curr.Index)
		}
		prev = curr
	}
	return nil
}
