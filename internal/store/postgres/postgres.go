package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stokbatch/backend/internal/domain"
	"stokbatch/backend/internal/store"
)

// Store is the PostgreSQL-backed repository. Purchase and sale line sets are
// stored as jsonb columns so a document and its lines stay a single row;
// line ids inside the json are stable, which keeps sale line bindings valid.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListBatches(ctx context.Context, companyID string) ([]domain.PurchaseBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, kind, purchase_date, supplier_id, supplier_name, invoice_number, lines, total_cents, notes, created_at, updated_at
		FROM purchases
		WHERE company_id = $1
		ORDER BY purchase_date, id
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.PurchaseBatch, 0, 64)
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) GetPurchaseByID(ctx context.Context, purchaseID string) (*domain.PurchaseBatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, kind, purchase_date, supplier_id, supplier_name, invoice_number, lines, total_cents, notes, created_at, updated_at
		FROM purchases
		WHERE id = $1
	`, purchaseID)

	purchase, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.PurchaseBatch) (*domain.PurchaseBatch, error) {
	if purchase.ID == "" || purchase.CompanyID == "" || len(purchase.Lines) == 0 {
		return nil, store.ErrInvalidSale
	}

	linesJSON, err := json.Marshal(purchase.Lines)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO purchases (id, company_id, kind, purchase_date, supplier_id, supplier_name, invoice_number, lines, total_cents, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, purchase.ID, purchase.CompanyID, purchase.Kind, purchase.PurchaseDate,
		nullIfEmpty(purchase.SupplierID), nullIfEmpty(purchase.SupplierName), nullIfEmpty(purchase.InvoiceNumber),
		linesJSON, purchase.TotalCents, nullIfEmpty(purchase.Notes), purchase.CreatedAt, purchase.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	created := purchase
	return &created, nil
}

func (s *Store) UpdateBatchLines(ctx context.Context, purchaseID string, lines []domain.BatchLine) error {
	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE purchases
		SET lines = $2, updated_at = now()
		WHERE id = $1
	`, purchaseID, linesJSON)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, companyID string, includeInactive bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, barcode, stock_qty, selling_price_cents, purchase_price_cents, status, sold_sale_id, sold_at, created_at
		FROM products
		WHERE company_id = $1 AND ($2 OR status = 'active')
		ORDER BY name, id
	`, companyID, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, barcode, stock_qty, selling_price_cents, purchase_price_cents, status, sold_sale_id, sold_at, created_at
		FROM products
		WHERE id = $1
	`, id)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.CompanyID == "" || product.Name == "" {
		return nil, store.ErrInvalidSale
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, company_id, name, barcode, stock_qty, selling_price_cents, purchase_price_cents, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, product.ID, product.CompanyID, product.Name, nullIfEmpty(product.Barcode),
		product.StockQty, product.SellingPriceCents, product.PurchasePriceCents, product.Status, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, stock_qty = $4, selling_price_cents = $5, purchase_price_cents = $6,
		    status = $7, sold_sale_id = $8, sold_at = $9, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.Barcode), product.StockQty,
		product.SellingPriceCents, product.PurchasePriceCents, product.Status,
		nullIfEmpty(product.SoldSaleID), nullTime(product.SoldAt))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int, mode store.StockAdjustMode) error {
	var query string
	switch mode {
	case store.StockAdd:
		query = `UPDATE products SET stock_qty = stock_qty + $2, updated_at = now() WHERE id = $1`
	case store.StockSubtract:
		query = `UPDATE products SET stock_qty = stock_qty - $2, updated_at = now() WHERE id = $1`
	case store.StockSet:
		query = `UPDATE products SET stock_qty = $2, updated_at = now() WHERE id = $1`
	default:
		return store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkProductSold(ctx context.Context, id string, saleID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET status = 'sold', sold_sale_id = $2, sold_at = $3, updated_at = now()
		WHERE id = $1
	`, id, saleID, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" || sale.CompanyID == "" || len(sale.Lines) == 0 {
		return nil, store.ErrInvalidSale
	}

	linesJSON, err := json.Marshal(sale.Lines)
	if err != nil {
		return nil, err
	}
	paymentsJSON, err := json.Marshal(sale.Payments)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (id, company_id, invoice_number, sale_date, customer_id, customer_name, lines, payments,
		                   subtotal_cents, grand_total_cents, credit_applied_cents, credit_added_cents, archived, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, sale.ID, sale.CompanyID, sale.InvoiceNumber, sale.SaleDate,
		nullIfEmpty(sale.CustomerID), nullIfEmpty(sale.CustomerName), linesJSON, paymentsJSON,
		sale.SubtotalCents, sale.GrandTotalCents, sale.CreditAppliedCents, sale.CreditAddedCents,
		sale.Archived, nullIfEmpty(sale.CreatedBy), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, invoice_number, sale_date, customer_id, customer_name, lines, payments,
		       subtotal_cents, grand_total_cents, credit_applied_cents, credit_added_cents, archived, created_by, created_at
		FROM sales
		WHERE id = $1
	`, id)

	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, companyID string, includeArchived bool, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, invoice_number, sale_date, customer_id, customer_name, lines, payments,
		       subtotal_cents, grand_total_cents, credit_applied_cents, credit_added_cents, archived, created_by, created_at
		FROM sales
		WHERE company_id = $1 AND ($2 OR archived = false)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, companyID, includeArchived, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) SetSaleArchived(ctx context.Context, id string, archived bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales SET archived = $2 WHERE id = $1
	`, id, archived)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountSales(ctx context.Context, companyID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM sales WHERE company_id = $1
	`, companyID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListCustomers(ctx context.Context, companyID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, phone, credit_balance_cents, created_at
		FROM customers
		WHERE company_id = $1
		ORDER BY name, id
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		var phone sql.NullString
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &phone, &c.CreditBalanceCents, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Phone = phone.String
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	var phone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, phone, credit_balance_cents, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.CompanyID, &c.Name, &phone, &c.CreditBalanceCents, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.Phone = phone.String
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.CompanyID == "" || customer.Name == "" {
		return nil, store.ErrInvalidSale
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, company_id, name, phone, credit_balance_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.CompanyID, customer.Name, nullIfEmpty(customer.Phone),
		customer.CreditBalanceCents, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) AdjustCreditBalance(ctx context.Context, customerID string, deltaCents int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET credit_balance_cents = GREATEST(0, credit_balance_cents + $2)
		WHERE id = $1
		RETURNING credit_balance_cents
	`, customerID, deltaCents).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, company_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.CompanyID, entry.ActorUsername, entry.ActorRole,
		entry.Action, entry.EntityType, nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, companyID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE company_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, companyID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var entityID, detail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.CompanyID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entityID, &detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.EntityID = entityID.String
		entry.Detail = detail.String
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidSale
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidSale
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (domain.PurchaseBatch, error) {
	var p domain.PurchaseBatch
	var supplierID, supplierName, invoiceNumber, notes sql.NullString
	var linesJSON []byte

	err := row.Scan(&p.ID, &p.CompanyID, &p.Kind, &p.PurchaseDate,
		&supplierID, &supplierName, &invoiceNumber, &linesJSON,
		&p.TotalCents, &notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.PurchaseBatch{}, err
	}

	p.SupplierID = supplierID.String
	p.SupplierName = supplierName.String
	p.InvoiceNumber = invoiceNumber.String
	p.Notes = notes.String
	if len(linesJSON) > 0 {
		if err := json.Unmarshal(linesJSON, &p.Lines); err != nil {
			return domain.PurchaseBatch{}, err
		}
	}
	return p, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var barcode, soldSaleID sql.NullString
	var soldAt sql.NullTime

	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &barcode, &p.StockQty,
		&p.SellingPriceCents, &p.PurchasePriceCents, &p.Status, &soldSaleID, &soldAt, &p.CreatedAt)
	if err != nil {
		return domain.Product{}, err
	}

	p.Barcode = barcode.String
	p.SoldSaleID = soldSaleID.String
	if soldAt.Valid {
		at := soldAt.Time
		p.SoldAt = &at
	}
	return p, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var customerID, customerName, createdBy sql.NullString
	var linesJSON, paymentsJSON []byte

	err := row.Scan(&sale.ID, &sale.CompanyID, &sale.InvoiceNumber, &sale.SaleDate,
		&customerID, &customerName, &linesJSON, &paymentsJSON,
		&sale.SubtotalCents, &sale.GrandTotalCents, &sale.CreditAppliedCents, &sale.CreditAddedCents,
		&sale.Archived, &createdBy, &sale.CreatedAt)
	if err != nil {
		return domain.Sale{}, err
	}

	sale.CustomerID = customerID.String
	sale.CustomerName = customerName.String
	sale.CreatedBy = createdBy.String
	if len(linesJSON) > 0 {
		if err := json.Unmarshal(linesJSON, &sale.Lines); err != nil {
			return domain.Sale{}, err
		}
	}
	if len(paymentsJSON) > 0 {
		if err := json.Unmarshal(paymentsJSON, &sale.Payments); err != nil {
			return domain.Sale{}, err
		}
	}
	return sale, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
