package promserver

import "github.com/syepes/hubitat-exporter/pkg/hub"

// InventoryIndex maps device ids to their inventory record. A nil InventoryIndex means no
// inventory is available and devices render in simple mode.
type InventoryIndex map[string]hub.InventoryRecord

// NewInventoryIndex indexes records by id. When an id repeats, the later record wins.
func NewInventoryIndex(records []hub.InventoryRecord) InventoryIndex {
	idx := make(InventoryIndex, len(records))
	for _, r := range records {
		idx[r.ID.String()] = r
	}
	return idx
}

// Lookup returns the inventory record of device id.
func (idx InventoryIndex) Lookup(id string) (hub.InventoryRecord, bool) {
	r, ok := idx[id]
	return r, ok
}
