package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxQuantity bounds a sale line, a product's total within one sale, a
// purchase's batch count and a product's units per batch.
const MaxQuantity = 1_000_000

// MaxAmount is the first value NUMERIC(12,2) cannot hold. Prices, costs and
// every computed subtotal or total must stay below it.
var MaxAmount = decimal.New(1, 10)

// Product is a sellable item. CurrentStock and TotalUnitsSold are derived
// from purchases and sale items and are never written by clients.
type Product struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	UnitSellingPrice decimal.Decimal `json:"unit_selling_price"`
	CostPerBatch     decimal.Decimal `json:"cost_per_batch"`
	UnitsPerBatch    int64           `json:"units_per_batch"`
	CurrentStock     int64           `json:"current_stock"`
	TotalUnitsSold   int64           `json:"total_units_sold"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// UnitCost is the cost of a single unit at the current batch pricing.
func (p Product) UnitCost() decimal.Decimal {
	if p.UnitsPerBatch <= 0 {
		return decimal.Zero
	}
	return p.CostPerBatch.Div(decimal.NewFromInt(p.UnitsPerBatch))
}

// StockPurchase records a batch restock of a product.
type StockPurchase struct {
	ID               uuid.UUID       `json:"id"`
	ProductID        uuid.UUID       `json:"product_id"`
	BatchesPurchased int64           `json:"batches_purchased"`
	CostPerBatch     decimal.Decimal `json:"cost_per_batch"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	UnitsAdded       int64           `json:"units_added"`
	PurchasedAt      time.Time       `json:"purchased_at"`
	Notes            string          `json:"notes,omitempty"`
}

// Sale is a transaction header grouping one or more sale items.
type Sale struct {
	ID          uuid.UUID       `json:"id"`
	SoldAt      time.Time       `json:"sold_at"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       string          `json:"notes,omitempty"`
	Items       []SaleItem      `json:"items"`
}

// SaleItem is one product line of a sale. UnitPrice is the product price at
// the moment of sale.
type SaleItem struct {
	ID        uuid.UUID       `json:"id"`
	SaleID    uuid.UUID       `json:"sale_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// StockLevel is the post-write stock snapshot of a product.
type StockLevel struct {
	ProductID      uuid.UUID
	Name           string
	CurrentStock   int64
	TotalUnitsSold int64
}

// ProductInput carries the operator-editable product fields.
type ProductInput struct {
	Name             string
	Description      string
	UnitSellingPrice decimal.Decimal
	CostPerBatch     decimal.Decimal
	UnitsPerBatch    int64
}

// PurchaseInput describes a restock. CostPerBatch defaults to the product's
// current cost and PurchasedAt to now.
type PurchaseInput struct {
	ProductID        uuid.UUID
	BatchesPurchased int64
	CostPerBatch     *decimal.Decimal
	PurchasedAt      *time.Time
	Notes            string
}

// SaleItemInput is a requested sale line.
type SaleItemInput struct {
	ProductID uuid.UUID
	Quantity  int64
}

// SaleInput describes a multi-item sale. IdempotencyKey is optional.
type SaleInput struct {
	SoldAt         *time.Time
	Notes          string
	Items          []SaleItemInput
	IdempotencyKey string
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search  string
	Page    int
	PerPage int
}

// SaleFilter narrows sale listings to a half-open [From, To) range.
type SaleFilter struct {
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

// PurchaseFilter narrows purchase listings.
type PurchaseFilter struct {
	ProductID uuid.UUID
	Page      int
	PerPage   int
}

var (
	// ErrProductNotFound is returned when a product id does not resolve.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrSaleNotFound is returned when a sale id does not resolve.
	ErrSaleNotFound = errors.New("inventory: sale not found")
	// ErrInsufficientStock is matched by *InsufficientStockError.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates a quantity or batch count outside 1..MaxQuantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be between 1 and 1000000")
	// ErrInvalidPrice indicates a negative selling price.
	ErrInvalidPrice = errors.New("inventory: price must be >= 0")
	// ErrInvalidCost indicates a negative cost.
	ErrInvalidCost = errors.New("inventory: cost must be >= 0")
	// ErrInvalidBatchSize indicates units per batch outside 1..MaxQuantity.
	ErrInvalidBatchSize = errors.New("inventory: units per batch must be between 1 and 1000000")
	// ErrAmountTooLarge indicates a price, cost or computed total that does
	// not fit NUMERIC(12,2).
	ErrAmountTooLarge = errors.New("inventory: amount must be below 10000000000")
	// ErrCounterOverflow indicates a stock counter that would leave int64 range.
	ErrCounterOverflow = errors.New("inventory: stock counter out of range")
	// ErrNameRequired indicates a blank product name.
	ErrNameRequired = errors.New("inventory: product name required")
	// ErrEmptySale indicates a sale without items.
	ErrEmptySale = errors.New("inventory: sale requires at least one item")
	// ErrInvalidRange indicates a listing range whose start is not before its end.
	ErrInvalidRange = errors.New("inventory: range start must precede end")
)

// InsufficientStockError reports a sale line that exceeds available stock.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Name      string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %q: available %d, requested %d", e.Name, e.Available, e.Requested)
}

// Is lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// FieldError ties a validation failure to the request field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(field string, err error) error {
	return &FieldError{Field: field, Err: err}
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	for _, target := range []error{ErrInvalidQuantity, ErrInvalidPrice, ErrInvalidCost, ErrInvalidBatchSize, ErrAmountTooLarge, ErrCounterOverflow, ErrNameRequired, ErrEmptySale, ErrInvalidRange} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
