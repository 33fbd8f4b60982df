package models

import (
	"encoding/json"
	"time"
)

// ClientGroup представляет один логический экземпляр приложения
// (переживает перезагрузки). Принадлежит пользователю, создавшему его.
type ClientGroup struct {
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ID         string    `json:"id"`
	CreatedBy  string    `json:"created_by"`  // владелец группы
	CVRVersion int64     `json:"cvr_version"` // максимальная выданная версия CVR
}

// Client представляет один поток мутаций внутри группы
type Client struct {
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ID             string    `json:"id"`
	ClientGroupID  string    `json:"client_group_id"`
	LastMutationID int64     `json:"last_mutation_id"` // последний примененный ID мутации, начинается с 0
}

// Mutation намерение клиента изменить данные.
// ID строго возрастает в рамках клиента, начиная с 1.
type Mutation struct {
	ClientID string          `json:"clientID"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
	ID       int64           `json:"id"`
}
