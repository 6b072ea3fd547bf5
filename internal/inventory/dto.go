package inventory

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name             string `json:"name" validate:"required,max=200"`
	Description      string `json:"description" validate:"max=2000"`
	UnitSellingPrice string `json:"unit_selling_price" validate:"required,money"`
	CostPerBatch     string `json:"cost_per_batch" validate:"required,money"`
	UnitsPerBatch    int64  `json:"units_per_batch" validate:"required,gt=0,lte=1000000"`
}

func (r productRequest) toInput() ProductInput {
	return ProductInput{
		Name:             r.Name,
		Description:      r.Description,
		UnitSellingPrice: parseMoney(r.UnitSellingPrice),
		CostPerBatch:     parseMoney(r.CostPerBatch),
		UnitsPerBatch:    r.UnitsPerBatch,
	}
}

type purchaseRequest struct {
	ProductID        string     `json:"product_id" validate:"required,uuid"`
	BatchesPurchased int64      `json:"batches_purchased" validate:"required,gt=0,lte=1000000"`
	CostPerBatch     *string    `json:"cost_per_batch" validate:"omitempty,money"`
	PurchasedAt      *time.Time `json:"purchased_at"`
	Notes            string     `json:"notes" validate:"max=1000"`
}

func (r purchaseRequest) toInput() PurchaseInput {
	input := PurchaseInput{
		ProductID:        uuid.MustParse(r.ProductID),
		BatchesPurchased: r.BatchesPurchased,
		PurchasedAt:      r.PurchasedAt,
		Notes:            r.Notes,
	}
	if r.CostPerBatch != nil {
		cost := parseMoney(*r.CostPerBatch)
		input.CostPerBatch = &cost
	}
	return input
}

type saleItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0,lte=1000000"`
}

type saleRequest struct {
	SoldAt *time.Time        `json:"sold_at"`
	Notes  string            `json:"notes" validate:"max=1000"`
	Items  []saleItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (r saleRequest) toInput() SaleInput {
	items := make([]SaleItemInput, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, SaleItemInput{ProductID: uuid.MustParse(item.ProductID), Quantity: item.Quantity})
	}
	return SaleInput{SoldAt: r.SoldAt, Notes: r.Notes, Items: items}
}

type productResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	UnitSellingPrice string    `json:"unit_selling_price"`
	CostPerBatch     string    `json:"cost_per_batch"`
	UnitsPerBatch    int64     `json:"units_per_batch"`
	UnitCost         string    `json:"unit_cost"`
	CurrentStock     int64     `json:"current_stock"`
	TotalUnitsSold   int64     `json:"total_units_sold"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:               p.ID,
		Name:             p.Name,
		Description:      p.Description,
		UnitSellingPrice: money(p.UnitSellingPrice),
		CostPerBatch:     money(p.CostPerBatch),
		UnitsPerBatch:    p.UnitsPerBatch,
		UnitCost:         money(p.UnitCost()),
		CurrentStock:     p.CurrentStock,
		TotalUnitsSold:   p.TotalUnitsSold,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

type purchaseResponse struct {
	ID               uuid.UUID `json:"id"`
	ProductID        uuid.UUID `json:"product_id"`
	BatchesPurchased int64     `json:"batches_purchased"`
	CostPerBatch     string    `json:"cost_per_batch"`
	TotalCost        string    `json:"total_cost"`
	UnitsAdded       int64     `json:"units_added"`
	PurchasedAt      time.Time `json:"purchased_at"`
	Notes            string    `json:"notes,omitempty"`
}

func toPurchaseResponse(p StockPurchase) purchaseResponse {
	return purchaseResponse{
		ID:               p.ID,
		ProductID:        p.ProductID,
		BatchesPurchased: p.BatchesPurchased,
		CostPerBatch:     money(p.CostPerBatch),
		TotalCost:        money(p.TotalCost),
		UnitsAdded:       p.UnitsAdded,
		PurchasedAt:      p.PurchasedAt,
		Notes:            p.Notes,
	}
}

type saleItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
}

type saleResponse struct {
	ID          uuid.UUID          `json:"id"`
	SoldAt      time.Time          `json:"sold_at"`
	TotalAmount string             `json:"total_amount"`
	Notes       string             `json:"notes,omitempty"`
	Items       []saleItemResponse `json:"items"`
}

func toSaleResponse(s Sale) saleResponse {
	items := make([]saleItemResponse, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, saleItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: money(item.UnitPrice),
			Subtotal:  money(item.Subtotal),
		})
	}
	return saleResponse{
		ID:          s.ID,
		SoldAt:      s.SoldAt,
		TotalAmount: money(s.TotalAmount),
		Notes:       s.Notes,
		Items:       items,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("money", validateMoney)
	return v
}

// validateMoney accepts non-negative decimals with at most two fractional
// digits that fit NUMERIC(12,2).
func validateMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
	if err != nil {
		return false
	}
	return !d.IsNegative() && d.Equal(d.Round(2)) && d.LessThan(MaxAmount)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "money":
		return "must be a non-negative amount below 10000000000 with at most two decimals"
	case "uuid":
		return "must be a uuid"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "must contain at least " + fe.Param() + " entry"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

// parseMoney assumes the value already passed the money rule.
func parseMoney(raw string) decimal.Decimal {
	return decimal.RequireFromString(strings.TrimSpace(raw))
}
