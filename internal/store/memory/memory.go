package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stokbatch/backend/internal/domain"
	"stokbatch/backend/internal/store"
	"stokbatch/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	productsByID    map[string]domain.Product
	purchasesByID   map[string]domain.PurchaseBatch
	salesByID       map[string]domain.Sale
	customersByID   map[string]domain.Customer
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		productsByID:    make(map[string]domain.Product),
		purchasesByID:   make(map[string]domain.PurchaseBatch),
		salesByID:       make(map[string]domain.Sale),
		customersByID:   make(map[string]domain.Customer),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

// NewSeeded returns a store preloaded with a small demo catalog for the
// given company.
func NewSeeded(companyID string) *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: xid.New("prd"), CompanyID: companyID, Name: "Cotton Shirt", Barcode: "8901001", StockQty: 8, SellingPriceCents: 129900, PurchasePriceCents: 74000, Status: domain.ProductStatusActive, CreatedAt: now},
		{ID: xid.New("prd"), CompanyID: companyID, Name: "Denim Jeans", Barcode: "8901002", StockQty: 6, SellingPriceCents: 219900, PurchasePriceCents: 126000, Status: domain.ProductStatusActive, CreatedAt: now},
		{ID: xid.New("prd"), CompanyID: companyID, Name: "Wool Sweater", Barcode: "8901003", StockQty: 4, SellingPriceCents: 349900, PurchasePriceCents: 198000, Status: domain.ProductStatusActive, CreatedAt: now},
	}
	for _, p := range products {
		s.productsByID[p.ID] = p
	}

	purchase := domain.PurchaseBatch{
		ID:           xid.New("pur"),
		CompanyID:    companyID,
		Kind:         domain.PurchaseKindGST,
		PurchaseDate: now.AddDate(0, 0, -14),
		SupplierName: "Seed Supplier",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, p := range products {
		purchase.Lines = append(purchase.Lines, domain.BatchLine{
			ID:            xid.New("bl"),
			ProductID:     p.ID,
			ProductName:   p.Name,
			Article:       "SEED-" + p.Barcode,
			Barcode:       p.Barcode,
			QtyReceived:   p.StockQty,
			UnitCostCents: p.PurchasePriceCents,
			MRPCents:      p.SellingPriceCents,
		})
		purchase.TotalCents += int64(p.StockQty) * p.PurchasePriceCents
	}
	s.purchasesByID[purchase.ID] = clonePurchase(purchase)

	return s
}

func (s *Store) ListBatches(_ context.Context, companyID string) ([]domain.PurchaseBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := make([]domain.PurchaseBatch, 0, len(s.purchasesByID))
	for _, p := range s.purchasesByID {
		if p.CompanyID != companyID {
			continue
		}
		batches = append(batches, clonePurchase(p))
	}
	slices.SortFunc(batches, func(a, b domain.PurchaseBatch) int {
		if c := a.PurchaseDate.Compare(b.PurchaseDate); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return batches, nil
}

func (s *Store) GetPurchaseByID(_ context.Context, purchaseID string) (*domain.PurchaseBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.purchasesByID[purchaseID]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := clonePurchase(p)
	return &dup, nil
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.PurchaseBatch) (*domain.PurchaseBatch, error) {
	if purchase.CompanyID == "" || len(purchase.Lines) == 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	now := time.Now().UTC()
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = now
	}
	purchase.UpdatedAt = now
	if purchase.PurchaseDate.IsZero() {
		purchase.PurchaseDate = now
	}
	for i := range purchase.Lines {
		if purchase.Lines[i].ID == "" {
			purchase.Lines[i].ID = xid.New("bl")
		}
	}

	s.purchasesByID[purchase.ID] = clonePurchase(purchase)
	created := clonePurchase(purchase)
	return &created, nil
}

func (s *Store) UpdateBatchLines(_ context.Context, purchaseID string, lines []domain.BatchLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.purchasesByID[purchaseID]
	if !exists {
		return store.ErrNotFound
	}
	p.Lines = make([]domain.BatchLine, len(lines))
	copy(p.Lines, lines)
	p.UpdatedAt = time.Now().UTC()
	s.purchasesByID[purchaseID] = p
	return nil
}

func (s *Store) ListProducts(_ context.Context, companyID string, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if p.CompanyID != companyID {
			continue
		}
		if !includeInactive && p.Status != domain.ProductStatusActive {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := p
	return &dup, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.CompanyID == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	if product.Status == "" {
		product.Status = domain.ProductStatusActive
	}
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int, mode store.StockAdjustMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.productsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	switch mode {
	case store.StockAdd:
		p.StockQty += delta
	case store.StockSubtract:
		p.StockQty -= delta
	case store.StockSet:
		p.StockQty = delta
	default:
		return store.ErrInvalidSale
	}
	s.productsByID[id] = p
	return nil
}

func (s *Store) MarkProductSold(_ context.Context, id string, saleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.productsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	p.Status = domain.ProductStatusSold
	p.SoldSaleID = saleID
	soldAt := at.UTC()
	p.SoldAt = &soldAt
	s.productsByID[id] = p
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.CompanyID == "" || len(sale.Lines) == 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = sale.CreatedAt
	}
	s.salesByID[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) ListSales(_ context.Context, companyID string, includeArchived bool, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.CompanyID != companyID {
			continue
		}
		if !includeArchived && sale.Archived {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) SetSaleArchived(_ context.Context, id string, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return store.ErrNotFound
	}
	sale.Archived = archived
	s.salesByID[id] = sale
	return nil
}

func (s *Store) CountSales(_ context.Context, companyID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sale := range s.salesByID {
		if sale.CompanyID == companyID {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListCustomers(_ context.Context, companyID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if c.CompanyID != companyID {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := c
	return &dup, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.CompanyID == "" || customer.Name == "" {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cst")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) AdjustCreditBalance(_ context.Context, customerID string, deltaCents int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.customersByID[customerID]
	if !exists {
		return 0, store.ErrNotFound
	}
	c.CreditBalanceCents += deltaCents
	if c.CreditBalanceCents < 0 {
		c.CreditBalanceCents = 0
	}
	s.customersByID[customerID] = c
	return c.CreditBalanceCents, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, companyID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if companyID != "" && entry.CompanyID != companyID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidSale
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidSale
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidSale
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func clonePurchase(src domain.PurchaseBatch) domain.PurchaseBatch {
	dup := src
	lines := make([]domain.BatchLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	lines := make([]domain.SaleLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	payments := make([]domain.PaymentSplit, len(src.Payments))
	copy(payments, src.Payments)
	dup.Payments = payments
	return dup
}
