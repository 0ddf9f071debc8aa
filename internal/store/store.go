package store

import (
	"context"
	"errors"
	"time"

	"stokbatch/backend/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidSale = errors.New("invalid sale")
)

// StockAdjustMode selects how ProductStore.AdjustStock combines the delta
// with the current aggregate stock.
type StockAdjustMode string

const (
	StockAdd      StockAdjustMode = "add"
	StockSubtract StockAdjustMode = "subtract"
	StockSet      StockAdjustMode = "set"
)

type PurchaseStore interface {
	ListBatches(ctx context.Context, companyID string) ([]domain.PurchaseBatch, error)
	GetPurchaseByID(ctx context.Context, purchaseID string) (*domain.PurchaseBatch, error)
	CreatePurchase(ctx context.Context, purchase domain.PurchaseBatch) (*domain.PurchaseBatch, error)
	// UpdateBatchLines replaces the line set of an existing purchase; the
	// purchase's updated_at is bumped. Line ids must be stable across the
	// replace so sale line bindings stay valid.
	UpdateBatchLines(ctx context.Context, purchaseID string, lines []domain.BatchLine) error
}

type ProductStore interface {
	ListProducts(ctx context.Context, companyID string, includeInactive bool) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, id string, delta int, mode StockAdjustMode) error
	MarkProductSold(ctx context.Context, id string, saleID string, at time.Time) error
}

type SaleStore interface {
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, companyID string, includeArchived bool, limit int) ([]domain.Sale, error)
	SetSaleArchived(ctx context.Context, id string, archived bool) error
	CountSales(ctx context.Context, companyID string) (int, error)
}

type CustomerStore interface {
	ListCustomers(ctx context.Context, companyID string) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	// AdjustCreditBalance adds delta (which may be negative) to the
	// customer's balance and clamps the result at zero.
	AdjustCreditBalance(ctx context.Context, customerID string, deltaCents int64) (int64, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, companyID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	PurchaseStore
	ProductStore
	SaleStore
	CustomerStore
	AuditStore
	UserStore
}
