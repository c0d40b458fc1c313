package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/linemk/online-store/internal/domain/models"
	"github.com/shopspring/decimal"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStorage описывает методы для работы с заказами и их позициями.
type OrderStorage interface {
	// CreateOrderTx вставляет новый заказ (status=pending) внутри транзакции и возвращает его id.
	CreateOrderTx(ctx context.Context, tx *sql.Tx, customerID int64, totalPrice decimal.Decimal) (int64, error)
	// CreateOrderItemTx вставляет позицию заказа со снимком цены.
	CreateOrderItemTx(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error
	// LockOrderByIDTx читает заказ с блокировкой строки — сериализует конкурентные dispatch/cancel.
	LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error)
	// GetOrderItemsTx возвращает позиции заказа внутри транзакции.
	GetOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]*models.OrderItem, error)
	// UpdateOrderStatusTx переводит заказ в новый статус.
	UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, id int64, status string) error
	// GetOrdersByCustomerID возвращает заказы пользователя с позициями и полями товара, новые первыми.
	GetOrdersByCustomerID(ctx context.Context, customerID int64) ([]*models.Order, error)
	// GetAllOrders возвращает все заказы системы, новые первыми.
	GetAllOrders(ctx context.Context) ([]*models.Order, error)
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

func (r *orderRepository) CreateOrderTx(ctx context.Context, tx *sql.Tx, customerID int64, totalPrice decimal.Decimal) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (customer_id, status, total_price, created_at)
		 VALUES ($1, $2, $3, NOW()) RETURNING id`,
		customerID, models.OrderStatusPending, totalPrice,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	return id, nil
}

func (r *orderRepository) CreateOrderItemTx(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	query := `INSERT INTO order_items (order_id, product_id, quantity, price, created_at)
	          VALUES ($1, $2, $3, $4, NOW())`
	_, err := tx.ExecContext(ctx, query, item.OrderID, item.ProductID, item.Quantity, item.Price)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

func (r *orderRepository) LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}
	row := tx.QueryRowContext(ctx,
		"SELECT id, customer_id, status, total_price, created_at FROM orders WHERE id = $1 FOR UPDATE NOWAIT", id)
	if err := row.Scan(&order.ID, &order.CustomerID, &order.Status, &order.TotalPrice, &order.CreatedAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" { // lock
				return nil, fmt.Errorf("resource is locked, please try again: %w", err)
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]*models.OrderItem, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *orderRepository) UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	res, err := tx.ExecContext(ctx, "UPDATE orders SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// GetOrdersByCustomerID возвращает заказы пользователя, новые первыми,
// каждый — с позициями и полями товара через JOIN с таблицей products.
func (r *orderRepository) GetOrdersByCustomerID(ctx context.Context, customerID int64) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, customer_id, status, total_price, created_at
		 FROM orders WHERE customer_id = $1
		 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) GetAllOrders(ctx context.Context) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, customer_id, status, total_price, created_at
		 FROM orders
		 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrders(rows *sql.Rows) ([]*models.Order, error) {
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		if err := rows.Scan(&order.ID, &order.CustomerID, &order.Status, &order.TotalPrice, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems подтягивает позиции каждого заказа вместе с именем, остатком и изображением товара.
func (r *orderRepository) attachItems(ctx context.Context, orders []*models.Order) error {
	for _, order := range orders {
		rows, err := r.db.QueryContext(ctx,
			`SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, p.name, p.quantity, p.image
			 FROM order_items oi
			 JOIN products p ON oi.product_id = p.id
			 WHERE oi.order_id = $1
			 ORDER BY oi.id`, order.ID)
		if err != nil {
			return fmt.Errorf("failed to query order items: %w", err)
		}

		var items []*models.OrderItem
		for rows.Next() {
			item := &models.OrderItem{}
			if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price,
				&item.ProductName, &item.ProductQuantity, &item.ProductImage); err != nil {
				rows.Close()
				return err
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		order.Items = items
	}
	return nil
}
