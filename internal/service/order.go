package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/linemk/online-store/internal/domain/models"
	"github.com/linemk/online-store/internal/storage"
	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyOrder — в заказе нет ни одной позиции
	ErrEmptyOrder = errors.New("order must contain at least one item")
	// ErrInvalidQuantity — количество в позиции меньше единицы
	ErrInvalidQuantity = errors.New("item quantity must be at least 1")
	// ErrOutOfStock — при оформлении: товара нет или остатка не хватает
	ErrOutOfStock = errors.New("not enough stock")
	// ErrInsufficientStock — при отгрузке: остатка не хватает на момент списания
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOrderAlreadyProcessed — заказ уже отгружен или отменен, повторный переход запрещен
	ErrOrderAlreadyProcessed = errors.New("order already processed")
)

// OrderItemInput — запрошенная позиция заказа: товар и количество.
type OrderItemInput struct {
	ProductID int64
	Quantity  int
}

type OrderService interface {
	// PlaceOrder оформляет заказ: проверяет остатки, считает сумму и создает
	// заказ с позициями одной транзакцией. Остаток при оформлении не списывается.
	PlaceOrder(ctx context.Context, customerID int64, items []OrderItemInput) (int64, error)
	// ListOrders возвращает заказы пользователя, новые первыми.
	ListOrders(ctx context.Context, customerID int64) ([]*models.Order, error)
	// ListAllOrders возвращает все заказы системы (только для менеджера).
	ListAllOrders(ctx context.Context) ([]*models.Order, error)
	// DispatchOrder отгружает pending-заказ и списывает остатки. Единственное место, где уменьшается склад.
	DispatchOrder(ctx context.Context, orderID int64) error
	// CancelOrder отменяет pending-заказ. Остатки не трогаются: при оформлении ничего не списывалось.
	CancelOrder(ctx context.Context, orderID int64) error
}

type orderService struct {
	log         *slog.Logger
	db          *sql.DB
	productRepo storage.ProductStorage
	orderRepo   storage.OrderStorage
}

func NewOrderService(log *slog.Logger, db *sql.DB, productRepo storage.ProductStorage, orderRepo storage.OrderStorage) OrderService {
	return &orderService{
		log:         log,
		db:          db,
		productRepo: productRepo,
		orderRepo:   orderRepo,
	}
}

// PlaceOrder проверяет остатки по текущему состоянию каталога и создает заказ
// со снимком цен. Если какой-то проверки не прошло — транзакция откатывается,
// ни заказ, ни позиции не сохраняются.
func (s *orderService) PlaceOrder(ctx context.Context, customerID int64, items []OrderItemInput) (int64, error) {
	const op = "service.OrderService.PlaceOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("customerID", customerID))

	if len(items) == 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrEmptyOrder)
	}
	for _, item := range items {
		if item.Quantity < 1 {
			return 0, fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
		}
	}

	logger.Info("starting order transaction", slog.Int("items", len(items)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	// Проверяем остатки и считаем сумму по ценам на момент оформления
	total := decimal.Zero
	products := make(map[int64]*models.Product, len(items))
	for _, item := range items {
		product, err := s.productRepo.GetProductTx(ctx, tx, item.ProductID)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			if errors.Is(err, storage.ErrProductNotFound) {
				logger.Warn("product not found", slog.Int64("productID", item.ProductID))
				return 0, fmt.Errorf("%s: %w: product %d", op, ErrOutOfStock, item.ProductID)
			}
			logger.Error("failed to get product", slog.Any("error", err))
			return 0, fmt.Errorf("%s: failed to get product: %w", op, err)
		}
		if product.Quantity < item.Quantity {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Warn("not enough stock",
				slog.String("product", product.Name),
				slog.Int("available", product.Quantity),
				slog.Int("requested", item.Quantity))
			return 0, fmt.Errorf("%s: %w for %s", op, ErrOutOfStock, product.Name)
		}
		products[item.ProductID] = product
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	// Создаем заказ и позиции, каждая позиция фиксирует цену товара
	orderID, err := s.orderRepo.CreateOrderTx(ctx, tx, customerID, total)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to create order", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to create order: %w", op, err)
	}
	for _, item := range items {
		orderItem := &models.OrderItem{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     products[item.ProductID].Price,
		}
		if err := s.orderRepo.CreateOrderItemTx(ctx, tx, orderItem); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to create order item", slog.Any("error", err))
			return 0, fmt.Errorf("%s: failed to create order item: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("order placed successfully", slog.Int64("orderID", orderID), slog.String("total", total.String()))
	return orderID, nil
}

func (s *orderService) ListOrders(ctx context.Context, customerID int64) ([]*models.Order, error) {
	const op = "service.OrderService.ListOrders"

	orders, err := s.orderRepo.GetOrdersByCustomerID(ctx, customerID)
	if err != nil {
		s.log.Error("failed to get orders", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (s *orderService) ListAllOrders(ctx context.Context) ([]*models.Order, error) {
	const op = "service.OrderService.ListAllOrders"

	orders, err := s.orderRepo.GetAllOrders(ctx)
	if err != nil {
		s.log.Error("failed to get orders", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// DispatchOrder выполняет отгрузку одной транзакцией: блокирует заказ и все
// затронутые товары, перепроверяет остатки, списывает их и переводит заказ в
// dispatched. Либо списываются все позиции, либо ни одной — частичного списания
// при ошибке в середине цикла быть не может.
func (s *orderService) DispatchOrder(ctx context.Context, orderID int64) error {
	const op = "service.OrderService.DispatchOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", orderID))
	logger.Info("starting dispatch transaction")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	// Блокируем строку заказа: конкурентные dispatch/cancel одного заказа сериализуются здесь
	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, orderID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		if errors.Is(err, storage.ErrOrderNotFound) {
			return fmt.Errorf("%s: %w", op, storage.ErrOrderNotFound)
		}
		logger.Error("failed to get order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get order: %w", op, err)
	}

	if order.Status != models.OrderStatusPending {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("order is not pending", slog.String("status", order.Status))
		return fmt.Errorf("%s: %w", op, ErrOrderAlreadyProcessed)
	}

	items, err := s.orderRepo.GetOrderItemsTx(ctx, tx, orderID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to get order items", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get order items: %w", op, err)
	}

	// Количество по товарам: один товар может встречаться в нескольких позициях
	required := make(map[int64]int, len(items))
	for _, item := range items {
		required[item.ProductID] += item.Quantity
	}

	// Блокируем товары в порядке возрастания id, чтобы конкурентные отгрузки
	// с пересекающимися товарами не взаимоблокировались
	productIDs := make([]int64, 0, len(required))
	for id := range required {
		productIDs = append(productIDs, id)
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	locked := make(map[int64]*models.Product, len(productIDs))
	for _, id := range productIDs {
		product, err := s.productRepo.LockProductByIDTx(ctx, tx, id)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to lock product", slog.Int64("productID", id), slog.Any("error", err))
			return fmt.Errorf("%s: failed to lock product: %w", op, err)
		}
		locked[id] = product
	}

	// Сначала проверяем остатки по всем товарам, только потом списываем
	for _, id := range productIDs {
		product := locked[id]
		if product.Quantity < required[id] {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Warn("insufficient stock",
				slog.String("product", product.Name),
				slog.Int("available", product.Quantity),
				slog.Int("required", required[id]))
			return fmt.Errorf("%s: %w for %s", op, ErrInsufficientStock, product.Name)
		}
	}

	for _, id := range productIDs {
		newQuantity := locked[id].Quantity - required[id]
		if err := s.productRepo.UpdateProductQuantityTx(ctx, tx, id, newQuantity); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to update product quantity", slog.Int64("productID", id), slog.Any("error", err))
			return fmt.Errorf("%s: failed to update product quantity: %w", op, err)
		}
	}

	if err := s.orderRepo.UpdateOrderStatusTx(ctx, tx, orderID, models.OrderStatusDispatched); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to update order status", slog.Any("error", err))
		return fmt.Errorf("%s: failed to update order status: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("order dispatched successfully")
	return nil
}

// CancelOrder переводит pending-заказ в cancelled. Статус проверяется под
// блокировкой строки заказа, повторная отмена или отмена отгруженного заказа
// возвращает ErrOrderAlreadyProcessed без каких-либо изменений.
func (s *orderService) CancelOrder(ctx context.Context, orderID int64) error {
	const op = "service.OrderService.CancelOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", orderID))
	logger.Info("starting cancel transaction")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, orderID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		if errors.Is(err, storage.ErrOrderNotFound) {
			return fmt.Errorf("%s: %w", op, storage.ErrOrderNotFound)
		}
		logger.Error("failed to get order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get order: %w", op, err)
	}

	if order.Status != models.OrderStatusPending {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("order is not pending", slog.String("status", order.Status))
		return fmt.Errorf("%s: %w", op, ErrOrderAlreadyProcessed)
	}

	if err := s.orderRepo.UpdateOrderStatusTx(ctx, tx, orderID, models.OrderStatusCancelled); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to update order status", slog.Any("error", err))
		return fmt.Errorf("%s: failed to update order status: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("order cancelled successfully")
	return nil
}
