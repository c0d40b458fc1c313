package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы заказа. Заказ создается в pending и ровно один раз переходит
// в dispatched или cancelled, оба состояния конечные.
const (
	OrderStatusPending    = "pending"
	OrderStatusDispatched = "dispatched"
	OrderStatusCancelled  = "cancelled"
)

// Order представляет заказ покупателя. TotalPrice вычисляется при оформлении
// и дальше не меняется.
type Order struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	Status     string          `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
	Items      []*OrderItem    `json:"items,omitempty"`
}

// OrderItem — позиция заказа. Price — снимок цены товара на момент оформления,
// не зависит от последующих изменений цены в каталоге.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`

	// Поля товара, заполняются через JOIN с таблицей products при выборке заказов
	ProductName     string `json:"product_name,omitempty"`
	ProductQuantity int    `json:"product_quantity,omitempty"`
	ProductImage    []byte `json:"product_image,omitempty"`
}
