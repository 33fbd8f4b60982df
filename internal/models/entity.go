package models

import (
	"sort"
	"time"
)

// Collection имя синхронизируемой коллекции.
// Используется как префикс ключа в патче: "<collection>/<id>".
type Collection string

const (
	CollectionBoard       Collection = "board"
	CollectionBoardColumn Collection = "board_column"
	CollectionBoardItem   Collection = "board_item"
	CollectionList        Collection = "list"
	CollectionListItem    Collection = "list_item"

	// CollectionClient виртуальная коллекция клиентов группы.
	// Версией служит last_mutation_id, в патч она не попадает.
	CollectionClient Collection = "client"
)

// domainCollections перечисляет доменные коллекции в стабильном порядке
var domainCollections = []Collection{
	CollectionBoard,
	CollectionBoardColumn,
	CollectionBoardItem,
	CollectionList,
	CollectionListItem,
}

// Collections returns the synchronized domain collections in a stable order.
func Collections() []Collection {
	out := make([]Collection, len(domainCollections))
	copy(out, domainCollections)
	return out
}

// ParseCollection converts a raw name into a domain collection.
func ParseCollection(name string) (Collection, bool) {
	for _, c := range domainCollections {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

func (c Collection) String() string {
	return string(c)
}

// Key формирует ключ строки в локальной реплике клиента
func (c Collection) Key(id string) string {
	return string(c) + "/" + id
}

// Record общий интерфейс строк синхронизируемых коллекций
type Record interface {
	RecordID() string
}

// RowVersion минимальная проекция строки для Version Ledger
type RowVersion struct {
	ID      string
	Version int64
}

// Entity содержит общие поля всех синхронизируемых строк.
// Version строго растет при каждом изменении строки, строки никогда
// не удаляются физически: удаление = Deleted (tombstone).
type Entity struct {
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
	ID        string    `json:"id"`
	PublicID  string    `json:"public_id"`
	CreatedBy string    `json:"created_by"`
	Order     float64   `json:"order"`
	Version   int64     `json:"row_version"`
	Deleted   bool      `json:"deleted"`
}

// RecordID implements Record.
func (e Entity) RecordID() string {
	return e.ID
}

// Board доска
type Board struct {
	Name string `json:"name"`
	Entity
}

// BoardColumn колонка доски
type BoardColumn struct {
	Board string `json:"board"` // ID доски
	Name  string `json:"name"`
	Entity
}

// BoardItem карточка в колонке
type BoardItem struct {
	Column string `json:"column"` // ID колонки
	Text   string `json:"text"`
	Entity
}

// List список задач
type List struct {
	Name string `json:"name"`
	Entity
}

// ListItem элемент списка
type ListItem struct {
	List string `json:"list"` // ID списка
	Text string `json:"text"`
	Entity
	Done bool `json:"done"`
}

// Affected набор сущностей, затронутых мутациями, по коллекциям.
// Нужен для наблюдаемости и адресных poke, на корректность не влияет.
type Affected map[Collection][]string

// Add records touched ids for a collection.
func (a Affected) Add(c Collection, ids ...string) {
	if len(ids) == 0 {
		return
	}
	a[c] = append(a[c], ids...)
}

// Merge adds every id from other, skipping duplicates.
func (a Affected) Merge(other Affected) {
	for c, ids := range other {
		seen := make(map[string]struct{}, len(a[c]))
		for _, id := range a[c] {
			seen[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			a[c] = append(a[c], id)
		}
	}
}

// Count returns the number of touched ids across collections.
func (a Affected) Count() int {
	n := 0
	for _, ids := range a {
		n += len(ids)
	}
	return n
}

// IsEmpty reports whether nothing was touched.
func (a Affected) IsEmpty() bool {
	return a.Count() == 0
}

// Sorted returns a copy with ids sorted within each collection.
func (a Affected) Sorted() Affected {
	out := make(Affected, len(a))
	for c, ids := range a {
		cp := append([]string(nil), ids...)
		sort.Strings(cp)
		out[c] = cp
	}
	return out
}
