package domain

import "time"

// Derivation chains tracked by a watcher, following BIP44 conventions.
const (
	ExternalChain = 0
	InternalChain = 1

	// AssetChain is the derivation chain reserved for asset change outputs.
	AssetChain = 10
)

// Watcher is a named tracker bound to an extended public key. It owns the
// derivation cursors used to discover the next unused address and utxo for
// each tracked interface; cursors only advance when a new allocation lands
// on the derived script.
type Watcher struct {
	Name      string            `json:"name"`
	Xpub      string            `json:"xpub"`
	CreatedAt int64             `json:"createdAt"`
	Cursors   map[string]uint32 `json:"cursors"`
}

// NewWatcher returns a watcher bound to the given xpub with all cursors at
// zero.
func NewWatcher(name, xpub string) *Watcher {
	return &Watcher{
		Name:      name,
		Xpub:      xpub,
		CreatedAt: time.Now().Unix(),
		Cursors:   make(map[string]uint32),
	}
}

// NextIndex returns the current derivation index for the given interface.
func (w *Watcher) NextIndex(iface string) uint32 {
	return w.Cursors[iface]
}

// AdvanceCursor moves the derivation cursor of the given interface forward
// by exactly one position.
func (w *Watcher) AdvanceCursor(iface string) uint32 {
	w.Cursors[iface]++
	return w.Cursors[iface]
}
