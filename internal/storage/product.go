package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/linemk/online-store/internal/domain/models"
)

var (
	ErrProductNotFound = errors.New("product not found")
	// товар нельзя удалить, пока на него ссылаются позиции заказов
	ErrProductInUse = errors.New("product is referenced by existing orders")
)

// Варианты сортировки каталога, значения приходят из query-параметра sort
const (
	SortPriceAsc    = "price-low-to-high"
	SortPriceDesc   = "price-high-to-low"
	SortQuantityAsc = "quantity-low-to-high"
	SortQuantityDes = "quantity-high-to-low"
)

// ProductFilter — параметры выборки каталога: поиск по имени/категории,
// фильтр по категории и сортировка.
type ProductFilter struct {
	Search   string
	Category string
	Sort     string
}

// ProductStorage описывает методы для работы с таблицей товаров.
type ProductStorage interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]*models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductByName(ctx context.Context, name string) (*models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	// GetProductTx читает товар внутри транзакции без блокировки (проверка остатка при оформлении).
	GetProductTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error)
	// LockProductByIDTx берет блокировку строки товара (FOR UPDATE NOWAIT) — используется при отгрузке.
	LockProductByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error)
	// UpdateProductQuantityTx списывает остаток внутри транзакции отгрузки.
	UpdateProductQuantityTx(ctx context.Context, tx *sql.Tx, id int64, newQuantity int) error
}

type productRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

const productColumns = "id, name, description, category, price, quantity, weight, image, created_at, updated_at"

func scanProduct(row interface{ Scan(...interface{}) error }) (*models.Product, error) {
	p := &models.Product{}
	var description, category sql.NullString
	err := row.Scan(&p.ID, &p.Name, &description, &category, &p.Price, &p.Quantity, &p.Weight, &p.Image, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.Category = category.String
	return p, nil
}

// ListProducts возвращает каталог с учетом поиска, категории и сортировки.
// Направление сортировки подставляется из белого списка, чтобы не собирать SQL из пользовательского ввода.
func (r *productRepository) ListProducts(ctx context.Context, filter ProductFilter) ([]*models.Product, error) {
	query := "SELECT " + productColumns + " FROM products"
	var args []interface{}

	where := ""
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = fmt.Sprintf(" WHERE (name ILIKE $%d OR category ILIKE $%d)", len(args), len(args))
	}
	if filter.Category != "" && filter.Category != "all" {
		args = append(args, filter.Category)
		if where == "" {
			where = fmt.Sprintf(" WHERE category = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND category = $%d", len(args))
		}
	}
	query += where

	switch filter.Sort {
	case SortPriceAsc:
		query += " ORDER BY price ASC"
	case SortPriceDesc:
		query += " ORDER BY price DESC"
	case SortQuantityAsc:
		query += " ORDER BY quantity ASC"
	case SortQuantityDes:
		query += " ORDER BY quantity DESC"
	default:
		query += " ORDER BY id ASC"
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) GetProductByName(ctx context.Context, name string) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE name = $1", name)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO products (name, description, category, price, quantity, weight, image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id`,
		product.Name, product.Description, product.Category, product.Price, product.Quantity, product.Weight, product.Image,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	product.ID = id
	return product, nil
}

func (r *productRepository) UpdateProduct(ctx context.Context, product *models.Product) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET name = $1, description = $2, category = $3, price = $4, quantity = $5, weight = $6, image = $7, updated_at = NOW()
		 WHERE id = $8`,
		product.Name, product.Description, product.Category, product.Price, product.Quantity, product.Weight, product.Image, product.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *productRepository) DeleteProduct(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23503" { // foreign_key_violation
				return ErrProductInUse
			}
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *productRepository) GetProductTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) LockProductByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE NOWAIT", id)
	p, err := scanProduct(row)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" { // lock
				return nil, fmt.Errorf("resource is locked, please try again: %w", err)
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) UpdateProductQuantityTx(ctx context.Context, tx *sql.Tx, id int64, newQuantity int) error {
	res, err := tx.ExecContext(ctx, "UPDATE products SET quantity = $1, updated_at = NOW() WHERE id = $2", newQuantity, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}
