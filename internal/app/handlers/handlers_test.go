package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/online-store/internal/app/handlers"
	"github.com/linemk/online-store/internal/domain/models"
	"github.com/linemk/online-store/internal/security/jwtmiddleware"
	"github.com/linemk/online-store/internal/service"
	"github.com/linemk/online-store/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type fakeAuthService struct {
	registerErr error
	loginToken  string
	loginRole   string
	loginErr    error
}

var _ service.AuthServiceInterface = (*fakeAuthService)(nil)

func (f *fakeAuthService) Register(ctx context.Context, email, password, role string) error {
	return f.registerErr
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (string, string, error) {
	if f.loginErr != nil {
		return "", "", f.loginErr
	}
	return f.loginToken, f.loginRole, nil
}

type fakeProductService struct {
	products  []*models.Product
	product   *models.Product
	err       error
	deleteErr error
}

var _ service.ProductService = (*fakeProductService)(nil)

func (f *fakeProductService) ListProducts(ctx context.Context, filter storage.ProductFilter) ([]*models.Product, error) {
	return f.products, f.err
}

func (f *fakeProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.product, nil
}

func (f *fakeProductService) CreateProduct(ctx context.Context, input service.ProductInput) (*models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.product, nil
}

func (f *fakeProductService) UpdateProduct(ctx context.Context, id int64, input service.ProductInput) error {
	return f.err
}

func (f *fakeProductService) DeleteProduct(ctx context.Context, id int64) error {
	return f.deleteErr
}

type fakeOrderService struct {
	placedOrderID int64
	placeErr      error
	orders        []*models.Order
	listErr       error
	dispatchErr   error
	cancelErr     error
}

var _ service.OrderService = (*fakeOrderService)(nil)

func (f *fakeOrderService) PlaceOrder(ctx context.Context, customerID int64, items []service.OrderItemInput) (int64, error) {
	if f.placeErr != nil {
		return 0, f.placeErr
	}
	return f.placedOrderID, nil
}

func (f *fakeOrderService) ListOrders(ctx context.Context, customerID int64) ([]*models.Order, error) {
	return f.orders, f.listErr
}

func (f *fakeOrderService) ListAllOrders(ctx context.Context) ([]*models.Order, error) {
	return f.orders, f.listErr
}

func (f *fakeOrderService) DispatchOrder(ctx context.Context, orderID int64) error {
	return f.dispatchErr
}

func (f *fakeOrderService) CancelOrder(ctx context.Context, orderID int64) error {
	return f.cancelErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// withPrincipal кладет в контекст запроса аутентифицированного пользователя,
// как это делает JWT-middleware.
func withPrincipal(req *http.Request, userID int64, role string) *http.Request {
	ctx := context.WithValue(req.Context(), jwtmiddleware.PrincipalKey,
		jwtmiddleware.Principal{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

// withURLParam добавляет chi route-параметр в контекст запроса.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestRegisterHandler_Success(t *testing.T) {
	handler := handlers.RegisterHandler(testLogger(), &fakeAuthService{})

	body := `{"email": "user@example.com", "password": "password123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "User registered successfully")
}

func TestRegisterHandler_InvalidEmail(t *testing.T) {
	handler := handlers.RegisterHandler(testLogger(), &fakeAuthService{})

	body := `{"email": "not-an-email", "password": "password123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "Invalid email should be rejected")
}

func TestRegisterHandler_UnknownRole(t *testing.T) {
	handler := handlers.RegisterHandler(testLogger(), &fakeAuthService{})

	body := `{"email": "user@example.com", "password": "password123", "role": "admin"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "Unknown role should be rejected")
}

func TestRegisterHandler_DuplicateEmail(t *testing.T) {
	handler := handlers.RegisterHandler(testLogger(), &fakeAuthService{
		registerErr: service.ErrUserAlreadyExists,
	})

	body := `{"email": "user@example.com", "password": "password123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginHandler_Success(t *testing.T) {
	handler := handlers.LoginHandler(testLogger(), &fakeAuthService{
		loginToken: "jwt-token",
		loginRole:  models.RoleProductManager,
	})

	body := `{"email": "manager@example.com", "password": "password123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.LoginResponse
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "jwt-token", resp.Token)
	assert.Equal(t, models.RoleProductManager, resp.Role, "Role should accompany the token")
}

func TestLoginHandler_WrongPassword(t *testing.T) {
	handler := handlers.LoginHandler(testLogger(), &fakeAuthService{
		loginErr: service.ErrInvalidCredentials,
	})

	body := `{"email": "user@example.com", "password": "wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginHandler_UserNotFound(t *testing.T) {
	handler := handlers.LoginHandler(testLogger(), &fakeAuthService{
		loginErr: storage.ErrUserNotFound,
	})

	body := `{"email": "nobody@example.com", "password": "password123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListProductsHandler_Success(t *testing.T) {
	now := time.Now()
	handler := handlers.ListProductsHandler(testLogger(), &fakeProductService{
		products: []*models.Product{
			{ID: 1, Name: "keyboard", Price: decimal.RequireFromString("19.99"), Quantity: 5, CreatedAt: now, UpdatedAt: now},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/products?sort=price-low-to-high", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "keyboard")
	assert.Contains(t, w.Body.String(), "19.99", "Price should serialize as a decimal string")
}

func TestGetProductHandler_NotFound(t *testing.T) {
	handler := handlers.GetProductHandler(testLogger(), &fakeProductService{
		err: storage.ErrProductNotFound,
	})

	req := httptest.NewRequest(http.MethodGet, "/products/404", nil)
	req = withURLParam(req, "id", "404")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetProductHandler_InvalidID(t *testing.T) {
	handler := handlers.GetProductHandler(testLogger(), &fakeProductService{})

	req := httptest.NewRequest(http.MethodGet, "/products/abc", nil)
	req = withURLParam(req, "id", "abc")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func newProductForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		assert.NoError(t, writer.WriteField(key, value))
	}
	assert.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestAddProductHandler_Success(t *testing.T) {
	now := time.Now()
	handler := handlers.AddProductHandler(testLogger(), &fakeProductService{
		product: &models.Product{ID: 1, Name: "keyboard", Price: decimal.RequireFromString("19.99"), Quantity: 5, CreatedAt: now, UpdatedAt: now},
	}, 10)

	body, contentType := newProductForm(t, map[string]string{
		"name":     "keyboard",
		"price":    "19.99",
		"quantity": "5",
	})
	req := httptest.NewRequest(http.MethodPost, "/products/add", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "keyboard")
}

func TestAddProductHandler_BadPrice(t *testing.T) {
	handler := handlers.AddProductHandler(testLogger(), &fakeProductService{}, 10)

	body, contentType := newProductForm(t, map[string]string{
		"name":  "keyboard",
		"price": "not-a-number",
	})
	req := httptest.NewRequest(http.MethodPost, "/products/add", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteProductHandler_ProductInUse(t *testing.T) {
	handler := handlers.DeleteProductHandler(testLogger(), &fakeProductService{
		deleteErr: storage.ErrProductInUse,
	})

	req := httptest.NewRequest(http.MethodDelete, "/products/1", nil)
	req = withURLParam(req, "id", "1")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "Deleting a referenced product should be rejected")
}

func TestPlaceOrderHandler_Success(t *testing.T) {
	handler := handlers.PlaceOrderHandler(testLogger(), &fakeOrderService{placedOrderID: 3})

	body := `{"items": [{"product_id": 1, "quantity": 2}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = withPrincipal(req, 7, models.RoleCustomer)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp handlers.PlaceOrderResponse
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, int64(3), resp.OrderID)
}

func TestPlaceOrderHandler_EmptyItems(t *testing.T) {
	handler := handlers.PlaceOrderHandler(testLogger(), &fakeOrderService{})

	body := `{"items": []}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = withPrincipal(req, 7, models.RoleCustomer)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "Empty order should be rejected")
}

func TestPlaceOrderHandler_OutOfStock(t *testing.T) {
	handler := handlers.PlaceOrderHandler(testLogger(), &fakeOrderService{
		placeErr: service.ErrOutOfStock,
	})

	body := `{"items": [{"product_id": 1, "quantity": 100}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = withPrincipal(req, 7, models.RoleCustomer)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlaceOrderHandler_NoPrincipal(t *testing.T) {
	handler := handlers.PlaceOrderHandler(testLogger(), &fakeOrderService{})

	body := `{"items": [{"product_id": 1, "quantity": 1}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListOrdersHandler_Success(t *testing.T) {
	handler := handlers.ListOrdersHandler(testLogger(), &fakeOrderService{
		orders: []*models.Order{
			{ID: 3, CustomerID: 7, Status: models.OrderStatusPending, TotalPrice: decimal.RequireFromString("59.97"), CreatedAt: time.Now()},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req = withPrincipal(req, 7, models.RoleCustomer)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pending")
	assert.Contains(t, w.Body.String(), "59.97")
}

func TestDispatchOrderHandler_Success(t *testing.T) {
	handler := handlers.DispatchOrderHandler(testLogger(), &fakeOrderService{})

	req := httptest.NewRequest(http.MethodPatch, "/orders/3/dispatch", nil)
	req = withURLParam(req, "id", "3")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDispatchOrderHandler_NotFound(t *testing.T) {
	handler := handlers.DispatchOrderHandler(testLogger(), &fakeOrderService{
		dispatchErr: storage.ErrOrderNotFound,
	})

	req := httptest.NewRequest(http.MethodPatch, "/orders/999/dispatch", nil)
	req = withURLParam(req, "id", "999")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDispatchOrderHandler_AlreadyProcessed(t *testing.T) {
	handler := handlers.DispatchOrderHandler(testLogger(), &fakeOrderService{
		dispatchErr: service.ErrOrderAlreadyProcessed,
	})

	req := httptest.NewRequest(http.MethodPatch, "/orders/3/dispatch", nil)
	req = withURLParam(req, "id", "3")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "Dispatch of a processed order should report 400")
}

func TestDispatchOrderHandler_InsufficientStock(t *testing.T) {
	handler := handlers.DispatchOrderHandler(testLogger(), &fakeOrderService{
		dispatchErr: service.ErrInsufficientStock,
	})

	req := httptest.NewRequest(http.MethodPatch, "/orders/3/dispatch", nil)
	req = withURLParam(req, "id", "3")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelOrderHandler_Success(t *testing.T) {
	handler := handlers.CancelOrderHandler(testLogger(), &fakeOrderService{})

	req := httptest.NewRequest(http.MethodPatch, "/orders/3/cancel", nil)
	req = withURLParam(req, "id", "3")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCancelOrderHandler_AlreadyProcessed(t *testing.T) {
	handler := handlers.CancelOrderHandler(testLogger(), &fakeOrderService{
		cancelErr: service.ErrOrderAlreadyProcessed,
	})

	req := httptest.NewRequest(http.MethodPatch, "/orders/3/cancel", nil)
	req = withURLParam(req, "id", "3")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
