package api

// Операции в args мутации
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// EntityOp одна операция над строкой в args мутации.
// Имя мутации совпадает с именем коллекции, args - массив EntityOp.
// Nil поля не передаются: при update они остаются без изменений.
type EntityOp struct {
	Name     *string  `json:"name,omitempty"`
	Text     *string  `json:"text,omitempty"`
	Order    *float64 `json:"order,omitempty"`
	Done     *bool    `json:"done,omitempty"`
	Board    *string  `json:"board,omitempty"`
	Column   *string  `json:"column,omitempty"`
	List     *string  `json:"list,omitempty"`
	Op       string   `json:"_op"`
	ID       string   `json:"id,omitempty"`
	PublicID string   `json:"public_id,omitempty"`
}
