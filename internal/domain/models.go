package domain

import "time"

type Product struct {
	ID                 string     `json:"id"`
	CompanyID          string     `json:"company_id"`
	Name               string     `json:"name"`
	Barcode            string     `json:"barcode,omitempty"`
	StockQty           int        `json:"stock_qty"`
	SellingPriceCents  int64      `json:"selling_price_cents"`
	PurchasePriceCents int64      `json:"purchase_price_cents"`
	Status             string     `json:"status"`
	SoldSaleID         string     `json:"sold_sale_id,omitempty"`
	SoldAt             *time.Time `json:"sold_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type ProductCreateRequest struct {
	CompanyID         string `json:"company_id"`
	Name              string `json:"name"`
	Barcode           string `json:"barcode,omitempty"`
	SellingPriceCents int64  `json:"selling_price_cents"`
	InitialStock      int    `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name              *string `json:"name,omitempty"`
	Barcode           *string `json:"barcode,omitempty"`
	SellingPriceCents *int64  `json:"selling_price_cents,omitempty"`
	Status            *string `json:"status,omitempty"`
}

// BatchLine is one line item of a purchase document: a specific incoming
// stock lot with its own cost, prices, and running sold counter.
type BatchLine struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	Article        string `json:"article,omitempty"`
	Barcode        string `json:"barcode,omitempty"`
	QtyReceived    int    `json:"qty_received"`
	QtySold        int    `json:"qty_sold"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
	MRPCents       int64  `json:"mrp_cents,omitempty"`
	SalePriceCents int64  `json:"sale_price_cents,omitempty"`
}

// Available reports how many units of the lot remain unsold.
func (l BatchLine) Available() int {
	return l.QtyReceived - l.QtySold
}

// PurchaseBatch is one purchase document. Both document kinds ("gst"
// itemized and "simple") are unified behind this shape; the engine only
// cares about the lines and the purchase date.
type PurchaseBatch struct {
	ID            string      `json:"id"`
	CompanyID     string      `json:"company_id"`
	Kind          string      `json:"kind"`
	PurchaseDate  time.Time   `json:"purchase_date"`
	SupplierID    string      `json:"supplier_id,omitempty"`
	SupplierName  string      `json:"supplier_name,omitempty"`
	InvoiceNumber string      `json:"invoice_number,omitempty"`
	Lines         []BatchLine `json:"lines"`
	TotalCents    int64       `json:"total_cents"`
	Notes         string      `json:"notes,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type PurchaseLineRequest struct {
	ProductID      string `json:"product_id"`
	Article        string `json:"article,omitempty"`
	Barcode        string `json:"barcode,omitempty"`
	Qty            int    `json:"qty"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
	MRPCents       int64  `json:"mrp_cents,omitempty"`
	SalePriceCents int64  `json:"sale_price_cents,omitempty"`
}

type PurchaseCreateRequest struct {
	CompanyID     string                `json:"company_id"`
	Kind          string                `json:"kind"`
	PurchaseDate  string                `json:"purchase_date,omitempty"`
	SupplierID    string                `json:"supplier_id,omitempty"`
	SupplierName  string                `json:"supplier_name,omitempty"`
	InvoiceNumber string                `json:"invoice_number,omitempty"`
	Notes         string                `json:"notes,omitempty"`
	Lines         []PurchaseLineRequest `json:"lines"`
}

type PurchaseResponse struct {
	Purchase PurchaseBatch `json:"purchase"`
}

type PurchaseListResponse struct {
	Purchases []PurchaseBatch `json:"purchases"`
}

// SaleLine is immutable once the sale is persisted; the batch binding is
// resolved at creation time and never rewritten.
type SaleLine struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	CostPriceCents int64  `json:"cost_price_cents,omitempty"`
	MRPCents       int64  `json:"mrp_cents,omitempty"`
	LineKind       string `json:"line_kind"`
	TotalCents     int64  `json:"total_cents"`
	PurchaseID     string `json:"purchase_id,omitempty"`
	BatchLineID    string `json:"batch_line_id,omitempty"`
	MatchedArticle string `json:"matched_article,omitempty"`
	MatchedBarcode string `json:"matched_barcode,omitempty"`
}

type Sale struct {
	ID                 string         `json:"id"`
	CompanyID          string         `json:"company_id"`
	InvoiceNumber      string         `json:"invoice_number"`
	SaleDate           time.Time      `json:"sale_date"`
	CustomerID         string         `json:"customer_id,omitempty"`
	CustomerName       string         `json:"customer_name,omitempty"`
	Lines              []SaleLine     `json:"lines"`
	SubtotalCents      int64          `json:"subtotal_cents"`
	GrandTotalCents    int64          `json:"grand_total_cents"`
	Payments           []PaymentSplit `json:"payments,omitempty"`
	CreditAppliedCents int64          `json:"credit_applied_cents,omitempty"`
	CreditAddedCents   int64          `json:"credit_added_cents,omitempty"`
	Archived           bool           `json:"archived"`
	CreatedBy          string         `json:"created_by,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

type SaleLineRequest struct {
	ProductID           string `json:"product_id"`
	Qty                 int    `json:"qty"`
	LineKind            string `json:"line_kind,omitempty"`
	UnitPriceCents      *int64 `json:"unit_price_cents,omitempty"`
	ExplicitPurchaseID  string `json:"purchase_id,omitempty"`
	ExplicitBatchLineID string `json:"batch_line_id,omitempty"`
	MatchHint           string `json:"match_hint,omitempty"`
}

type SaleCreateRequest struct {
	CompanyID          string            `json:"company_id"`
	CustomerID         string            `json:"customer_id,omitempty"`
	SaleDate           string            `json:"sale_date,omitempty"`
	Lines              []SaleLineRequest `json:"lines"`
	Payments           []PaymentSplit    `json:"payments,omitempty"`
	CreditAppliedCents int64             `json:"credit_applied_cents,omitempty"`
	ManagerPIN         string            `json:"manager_pin,omitempty"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type PaymentSplit struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

type Customer struct {
	ID                 string    `json:"id"`
	CompanyID          string    `json:"company_id"`
	Name               string    `json:"name"`
	Phone              string    `json:"phone,omitempty"`
	CreditBalanceCents int64     `json:"credit_balance_cents"`
	CreatedAt          time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
}

type CustomerResponse struct {
	Customer Customer `json:"customer"`
}

// BatchHit is one ranked result from a batch index search.
type BatchHit struct {
	PurchaseID   string    `json:"purchase_id"`
	PurchaseDate time.Time `json:"purchase_date"`
	Line         BatchLine `json:"line"`
	Exact        bool      `json:"exact"`
}

type BatchSearchResponse struct {
	Query string     `json:"query"`
	Hits  []BatchHit `json:"hits"`
}

type ProfitReport struct {
	CompanyID         string  `json:"company_id"`
	From              string  `json:"from,omitempty"`
	To                string  `json:"to,omitempty"`
	TotalRevenueCents int64   `json:"total_revenue_cents"`
	TotalCostCents    int64   `json:"total_cost_cents"`
	TotalProfitCents  int64   `json:"total_profit_cents"`
	ProfitMarginPct   float64 `json:"profit_margin_pct"`
	SalesCount        int     `json:"sales_count"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	CompanyID     string    `json:"company_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	ProductStatusActive   = "active"
	ProductStatusSold     = "sold"
	ProductStatusArchived = "archived"
)

const (
	LineKindSale   = "sale"
	LineKindReturn = "return"
)

const (
	PurchaseKindGST    = "gst"
	PurchaseKindSimple = "simple"
)

const PaymentMethodCredit = "credit"
