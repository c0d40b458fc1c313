package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/online-store/internal/security/jwtmiddleware"
	"github.com/linemk/online-store/internal/service"
	"github.com/linemk/online-store/internal/storage"
)

// PlaceOrderRequest представляет входной JSON для оформления заказа.
type PlaceOrderRequest struct {
	Items []PlaceOrderItem `json:"items" validate:"required,min=1,dive"`
}

type PlaceOrderItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gte=1"`
}

// PlaceOrderResponse — ответ при успешном оформлении.
type PlaceOrderResponse struct {
	Message string `json:"message"`
	OrderID int64  `json:"orderId"`
}

// PlaceOrderHandler обрабатывает запрос POST /orders (роль customer)
func PlaceOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PlaceOrderHandler"
		logger := log.With(slog.String("op", op))

		var req PlaceOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		// Валидация структуры запроса с использованием validator
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		// Извлекаем принципала из контекста (установленного JWT middleware)
		principal, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("principal not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items := make([]service.OrderItemInput, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, service.OrderItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		orderID, err := orderService.PlaceOrder(r.Context(), principal.UserID, items)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrEmptyOrder), errors.Is(err, service.ErrInvalidQuantity):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, service.ErrOutOfStock):
				logger.Warn("order rejected: out of stock", slog.Any("error", err))
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				logger.Error("failed to place order", slog.Any("error", err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		resp := PlaceOrderResponse{Message: "Order placed successfully", OrderID: orderID}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// ListOrdersHandler обрабатывает запрос GET /orders — заказы текущего пользователя
func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("principal not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orders, err := orderService.ListOrders(r.Context(), principal.UserID)
		if err != nil {
			logger.Error("failed to list orders", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orders); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

// ListAllOrdersHandler обрабатывает запрос GET /orders/all (роль product_manager)
func ListAllOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListAllOrdersHandler"
		logger := log.With(slog.String("op", op))

		orders, err := orderService.ListAllOrders(r.Context())
		if err != nil {
			logger.Error("failed to list orders", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orders); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

// DispatchOrderHandler обрабатывает запрос PATCH /orders/{id}/dispatch (роль product_manager)
func DispatchOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DispatchOrderHandler"
		logger := log.With(slog.String("op", op))

		orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		if err := orderService.DispatchOrder(r.Context(), orderID); err != nil {
			switch {
			case errors.Is(err, storage.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, service.ErrOrderAlreadyProcessed):
				http.Error(w, "order already processed", http.StatusBadRequest)
			case errors.Is(err, service.ErrInsufficientStock):
				logger.Warn("dispatch rejected: insufficient stock", slog.Any("error", err))
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				logger.Error("failed to dispatch order", slog.Any("error", err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"message": "Order dispatched successfully"}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// CancelOrderHandler обрабатывает запрос PATCH /orders/{id}/cancel (роль product_manager)
func CancelOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CancelOrderHandler"
		logger := log.With(slog.String("op", op))

		orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		if err := orderService.CancelOrder(r.Context(), orderID); err != nil {
			switch {
			case errors.Is(err, storage.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, service.ErrOrderAlreadyProcessed):
				http.Error(w, "order already processed", http.StatusBadRequest)
			default:
				logger.Error("failed to cancel order", slog.Any("error", err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"message": "Order cancelled successfully"}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}
