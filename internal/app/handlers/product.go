package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/online-store/internal/service"
	"github.com/linemk/online-store/internal/storage"
	"github.com/shopspring/decimal"
)

// ListProductsHandler обрабатывает запрос GET /products.
// Параметры query: search (поиск по имени/категории), category, sort.
func ListProductsHandler(log *slog.Logger, productService service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListProductsHandler"
		logger := log.With(slog.String("op", op))

		filter := storage.ProductFilter{
			Search:   r.URL.Query().Get("search"),
			Category: r.URL.Query().Get("category"),
			Sort:     r.URL.Query().Get("sort"),
		}

		products, err := productService.ListProducts(r.Context(), filter)
		if err != nil {
			logger.Error("failed to list products", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(products); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

// GetProductHandler обрабатывает запрос GET /products/{id}
func GetProductHandler(log *slog.Logger, productService service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetProductHandler"
		logger := log.With(slog.String("op", op))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid product id", http.StatusBadRequest)
			return
		}

		product, err := productService.GetProduct(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				http.Error(w, "product not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get product", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(product); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

// parseProductForm разбирает multipart-форму товара: текстовые поля и файл image.
// Отсутствующие поля остаются nil — для частичного обновления.
func parseProductForm(r *http.Request, maxUploadMB int64) (service.ProductInput, error) {
	var input service.ProductInput

	if err := r.ParseMultipartForm(maxUploadMB << 20); err != nil {
		return input, err
	}

	formValue := func(key string) *string {
		if values, ok := r.MultipartForm.Value[key]; ok && len(values) > 0 {
			return &values[0]
		}
		return nil
	}

	input.Name = formValue("name")
	input.Description = formValue("description")
	input.Category = formValue("category")

	if v := formValue("price"); v != nil {
		price, err := decimal.NewFromString(*v)
		if err != nil {
			return input, errors.New("invalid price")
		}
		input.Price = &price
	}
	if v := formValue("quantity"); v != nil {
		quantity, err := strconv.Atoi(*v)
		if err != nil {
			return input, errors.New("invalid quantity")
		}
		input.Quantity = &quantity
	}
	if v := formValue("weight"); v != nil && *v != "" {
		weight, err := decimal.NewFromString(*v)
		if err != nil {
			return input, errors.New("invalid weight")
		}
		input.Weight = &weight
	}

	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		image, err := io.ReadAll(file)
		if err != nil {
			return input, err
		}
		input.Image = image
	}

	return input, nil
}

// AddProductHandler обрабатывает запрос POST /products/add (multipart-форма, только для менеджера)
func AddProductHandler(log *slog.Logger, productService service.ProductService, maxUploadMB int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AddProductHandler"
		logger := log.With(slog.String("op", op))

		input, err := parseProductForm(r, maxUploadMB)
		if err != nil {
			logger.Error("invalid request: form error", slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		product, err := productService.CreateProduct(r.Context(), input)
		if err != nil {
			if errors.Is(err, service.ErrProductAlreadyExists) {
				name := ""
				if input.Name != nil {
					name = *input.Name
				}
				http.Error(w, `product with name "`+name+`" already exists, please use a different name`, http.StatusBadRequest)
				return
			}
			logger.Error("failed to create product", slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(product); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// UpdateProductHandler обрабатывает запрос PUT /products/{id}: обновляются только переданные поля
func UpdateProductHandler(log *slog.Logger, productService service.ProductService, maxUploadMB int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateProductHandler"
		logger := log.With(slog.String("op", op))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid product id", http.StatusBadRequest)
			return
		}

		input, err := parseProductForm(r, maxUploadMB)
		if err != nil {
			logger.Error("invalid request: form error", slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := productService.UpdateProduct(r.Context(), id, input); err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				http.Error(w, "product not found", http.StatusNotFound)
				return
			}
			if errors.Is(err, service.ErrProductAlreadyExists) {
				http.Error(w, "product with this name already exists", http.StatusBadRequest)
				return
			}
			logger.Error("failed to update product", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"message": "Product updated"}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// DeleteProductHandler обрабатывает запрос DELETE /products/{id}
func DeleteProductHandler(log *slog.Logger, productService service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteProductHandler"
		logger := log.With(slog.String("op", op))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid product id", http.StatusBadRequest)
			return
		}

		if err := productService.DeleteProduct(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				http.Error(w, "product not found", http.StatusNotFound)
				return
			}
			if errors.Is(err, storage.ErrProductInUse) {
				http.Error(w, "product is referenced by existing orders", http.StatusBadRequest)
				return
			}
			logger.Error("failed to delete product", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"message": "Product deleted"}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}
