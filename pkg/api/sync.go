package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Patch operations
const (
	PatchOpClear = "clear"
	PatchOpPut   = "put"
	PatchOpDel   = "del"
)

// PokeTypePoke тип сообщения, которым сервер просит клиента сделать pull
const PokeTypePoke = "poke"

// Cookie токен продолжения, который клиент хранит между pull
type Cookie struct {
	CVRID string `json:"cvrID"`
	Order int64  `json:"order"` // версия CVR
}

// PullRequest запрос на получение изменений
type PullRequest struct {
	Cookie        *Cookie `json:"cookie"`
	ClientGroupID string  `json:"clientGroupID"`
	ProfileID     string  `json:"profileID,omitempty"`
	SchemaVersion string  `json:"schemaVersion,omitempty"`
	PullVersion   int     `json:"pullVersion,omitempty"`
}

// PatchOp одна инструкция патча для локальной реплики
type PatchOp struct {
	Op    string          `json:"op"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// PullResponse ответ на pull
type PullResponse struct {
	Cookie                *Cookie          `json:"cookie"`
	LastMutationIDChanges map[string]int64 `json:"lastMutationIDChanges"`
	Patch                 []PatchOp        `json:"patch"`
}

// Mutation мутация, отправленная клиентом
type Mutation struct {
	ClientID  string          `json:"clientID"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args"`
	ID        int64           `json:"id"`
	Timestamp float64         `json:"timestamp,omitempty"`
}

// PushRequest пакет мутаций от клиента
type PushRequest struct {
	ClientGroupID string     `json:"clientGroupID"`
	ProfileID     string     `json:"profileID,omitempty"`
	SchemaVersion string     `json:"schemaVersion,omitempty"`
	Mutations     []Mutation `json:"mutations"`
	PushVersion   int        `json:"pushVersion,omitempty"`
}

// PushResponse пустой ответ на успешный push: о результатах клиент узнает из следующего pull
type PushResponse struct{}

// PokeMessage сообщение по websocket каналу poke
type PokeMessage struct {
	Type string `json:"type"`
}

// Validate checks the request shape before any state is touched.
func (r *PullRequest) Validate() error {
	if r.ClientGroupID == "" {
		return errors.New("clientGroupID is required")
	}
	if r.Cookie != nil {
		if r.Cookie.CVRID == "" {
			return errors.New("cookie.cvrID is required")
		}
		if r.Cookie.Order < 0 {
			return errors.New("cookie.order must not be negative")
		}
	}
	return nil
}

// Validate checks the request shape before any state is touched.
func (r *PushRequest) Validate() error {
	if r.ClientGroupID == "" {
		return errors.New("clientGroupID is required")
	}
	for i, m := range r.Mutations {
		if m.ID < 1 {
			return fmt.Errorf("mutations[%d].id must be positive", i)
		}
		if m.ClientID == "" {
			return fmt.Errorf("mutations[%d].clientID is required", i)
		}
		if m.Name == "" {
			return fmt.Errorf("mutations[%d].name is required", i)
		}
	}
	return nil
}
