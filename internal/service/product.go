package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linemk/online-store/internal/domain/models"
	"github.com/linemk/online-store/internal/storage"
	"github.com/shopspring/decimal"
)

var ErrProductAlreadyExists = errors.New("product with this name already exists")

// ProductInput — данные для создания или частичного обновления товара.
// nil-поле при обновлении означает "не трогать".
type ProductInput struct {
	Name        *string
	Description *string
	Category    *string
	Price       *decimal.Decimal
	Quantity    *int
	Weight      *decimal.Decimal
	Image       []byte
}

type ProductService interface {
	ListProducts(ctx context.Context, filter storage.ProductFilter) ([]*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, input ProductInput) error
	DeleteProduct(ctx context.Context, id int64) error
}

type productService struct {
	log         *slog.Logger
	productRepo storage.ProductStorage
}

func NewProductService(log *slog.Logger, productRepo storage.ProductStorage) ProductService {
	return &productService{
		log:         log,
		productRepo: productRepo,
	}
}

func (s *productService) ListProducts(ctx context.Context, filter storage.ProductFilter) ([]*models.Product, error) {
	const op = "service.ProductService.ListProducts"

	products, err := s.productRepo.ListProducts(ctx, filter)
	if err != nil {
		s.log.Error("failed to list products", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return products, nil
}

func (s *productService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	const op = "service.ProductService.GetProduct"

	product, err := s.productRepo.GetProductByID(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrProductNotFound) {
			s.log.Error("failed to get product", slog.String("op", op), slog.Any("error", err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return product, nil
}

// CreateProduct добавляет товар в каталог. Название уникально: перед вставкой
// проверяем, нет ли товара с таким же именем (после обрезки пробелов).
func (s *productService) CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error) {
	const op = "service.ProductService.CreateProduct"
	logger := s.log.With(slog.String("op", op))

	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, fmt.Errorf("%s: product name is required", op)
	}
	name := strings.TrimSpace(*input.Name)

	_, err := s.productRepo.GetProductByName(ctx, name)
	if err == nil {
		logger.Warn("duplicate product name", slog.String("name", name))
		return nil, fmt.Errorf("%s: %w", op, ErrProductAlreadyExists)
	}
	if !errors.Is(err, storage.ErrProductNotFound) {
		logger.Error("failed to check product name", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to check product name: %w", op, err)
	}

	product := &models.Product{Name: name, Image: input.Image}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.Category != nil {
		product.Category = *input.Category
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.Quantity != nil {
		product.Quantity = *input.Quantity
	}
	if input.Weight != nil {
		product.Weight = decimal.NullDecimal{Decimal: *input.Weight, Valid: true}
	}

	if product.Price.IsNegative() {
		return nil, fmt.Errorf("%s: price must not be negative", op)
	}
	if product.Quantity < 0 {
		return nil, fmt.Errorf("%s: quantity must not be negative", op)
	}

	created, err := s.productRepo.CreateProduct(ctx, product)
	if err != nil {
		logger.Error("failed to create product", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create product: %w", op, err)
	}

	logger.Info("product created", slog.Int64("productID", created.ID))
	return created, nil
}

// UpdateProduct обновляет только переданные поля: читаем текущую запись,
// накладываем изменения и сохраняем строку целиком.
func (s *productService) UpdateProduct(ctx context.Context, id int64, input ProductInput) error {
	const op = "service.ProductService.UpdateProduct"
	logger := s.log.With(slog.String("op", op), slog.Int64("productID", id))

	product, err := s.productRepo.GetProductByID(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrProductNotFound) {
			logger.Error("failed to get product", slog.Any("error", err))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name != product.Name {
			// новое имя не должно конфликтовать с другим товаром
			if _, err := s.productRepo.GetProductByName(ctx, name); err == nil {
				return fmt.Errorf("%s: %w", op, ErrProductAlreadyExists)
			} else if !errors.Is(err, storage.ErrProductNotFound) {
				return fmt.Errorf("%s: failed to check product name: %w", op, err)
			}
		}
		product.Name = name
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.Category != nil {
		product.Category = *input.Category
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return fmt.Errorf("%s: price must not be negative", op)
		}
		product.Price = *input.Price
	}
	if input.Quantity != nil {
		if *input.Quantity < 0 {
			return fmt.Errorf("%s: quantity must not be negative", op)
		}
		product.Quantity = *input.Quantity
	}
	if input.Weight != nil {
		product.Weight = decimal.NullDecimal{Decimal: *input.Weight, Valid: true}
	}
	if input.Image != nil {
		product.Image = input.Image
	}

	if err := s.productRepo.UpdateProduct(ctx, product); err != nil {
		logger.Error("failed to update product", slog.Any("error", err))
		return fmt.Errorf("%s: failed to update product: %w", op, err)
	}

	logger.Info("product updated")
	return nil
}

func (s *productService) DeleteProduct(ctx context.Context, id int64) error {
	const op = "service.ProductService.DeleteProduct"
	logger := s.log.With(slog.String("op", op), slog.Int64("productID", id))

	if err := s.productRepo.DeleteProduct(ctx, id); err != nil {
		if !errors.Is(err, storage.ErrProductNotFound) && !errors.Is(err, storage.ErrProductInUse) {
			logger.Error("failed to delete product", slog.Any("error", err))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("product deleted")
	return nil
}
