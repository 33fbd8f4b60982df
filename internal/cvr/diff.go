package cvr

import (
	"sort"

	"github.com/iudanet/boardsync/internal/models"
)

// EntryDiff изменения одной коллекции между двумя CVR
type EntryDiff struct {
	Puts []string // новые или изменившиеся ID
	Dels []string // ID, которые ушли из видимости клиента
}

// Diff изменения по всем коллекциям
type Diff map[models.Collection]EntryDiff

// Calculate computes the difference between prev and next.
//
// Puts are ids present in next that are absent from prev or carry a strictly
// greater version. Dels are ids present in prev and absent from next. A
// tombstoned row that is still visible is a put, never a del. Id lists are
// sorted so the result does not depend on map iteration order.
func Calculate(prev, next CVR) Diff {
	names := make(map[models.Collection]struct{}, len(prev)+len(next))
	for name := range prev {
		names[name] = struct{}{}
	}
	for name := range next {
		names[name] = struct{}{}
	}

	diff := make(Diff, len(names))
	for name := range names {
		prevEntries := prev[name]
		nextEntries := next[name]

		d := EntryDiff{
			Puts: []string{},
			Dels: []string{},
		}
		for id, version := range nextEntries {
			prevVersion, ok := prevEntries[id]
			if !ok || prevVersion < version {
				d.Puts = append(d.Puts, id)
			}
		}
		for id := range prevEntries {
			if _, ok := nextEntries[id]; !ok {
				d.Dels = append(d.Dels, id)
			}
		}
		sort.Strings(d.Puts)
		sort.Strings(d.Dels)

		diff[name] = d
	}

	return diff
}

// IsEmpty reports whether no collection has puts or dels.
func (d Diff) IsEmpty() bool {
	for _, e := range d {
		if len(e.Puts) != 0 || len(e.Dels) != 0 {
			return false
		}
	}
	return true
}

// Puts returns the put ids of a collection (nil when untouched).
func (d Diff) Puts(name models.Collection) []string {
	return d[name].Puts
}

// Dels returns the deleted ids of a collection (nil when untouched).
func (d Diff) Dels(name models.Collection) []string {
	return d[name].Dels
}
