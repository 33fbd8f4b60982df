// Package cvr implements the Client View Record: a server-held snapshot of
// which row versions a client was last told about, and the diff between two
// such snapshots.
package cvr

import (
	"encoding/json"
	"fmt"

	"github.com/iudanet/boardsync/internal/models"
)

// Entries отображение ID строки в версию, о которой знает клиент
type Entries map[string]int64

// CVR (Client View Record) снимок версий по коллекциям.
// CVR не изменяется на месте: каждый pull строит новый снимок.
type CVR map[models.Collection]Entries

// EntriesFromVersions builds CVR entries from a Version Ledger projection.
func EntriesFromVersions(rows []models.RowVersion) Entries {
	entries := make(Entries, len(rows))
	for _, row := range rows {
		entries[row.ID] = row.Version
	}
	return entries
}

// Clone returns a deep copy of the record.
func (c CVR) Clone() CVR {
	out := make(CVR, len(c))
	for name, entries := range c {
		cp := make(Entries, len(entries))
		for id, v := range entries {
			cp[id] = v
		}
		out[name] = cp
	}
	return out
}

// Marshal serializes the record for an opaque blob store.
func (c CVR) Marshal() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cvr: %w", err)
	}
	return data, nil
}

// Unmarshal parses a record produced by Marshal.
func Unmarshal(data []byte) (CVR, error) {
	var c CVR
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cvr: %w", err)
	}
	if c == nil {
		c = CVR{}
	}
	return c, nil
}
