package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product представляет товар каталога. Поле Quantity — изменяемый остаток на складе,
// уменьшается только при отгрузке заказа. Image хранится как есть (BYTEA),
// encoding/json сам кодирует []byte в base64 при отдаче клиенту.
type Product struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Price       decimal.Decimal     `json:"price"`
	Quantity    int                 `json:"quantity"`
	Weight      decimal.NullDecimal `json:"weight,omitempty"`
	Image       []byte              `json:"image,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
