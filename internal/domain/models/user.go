package models

import "time"

// Роли пользователей, значения совпадают с CHECK-ограничением в таблице users
const (
	RoleCustomer       = "customer"
	RoleProductManager = "product_manager"
)

// User представляет пользователя магазина
type User struct {
	ID        int64
	Email     string
	PassHash  []byte
	Role      string
	CreatedAt time.Time
}
