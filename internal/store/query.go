package store

import (
	"strings"

	"ventaslink/backend/internal/domain"
)

// SortField enumerates the sale columns a listing can be ordered by. The
// values double as the stored document field names.
type SortField string

const (
	SortCustomerName  SortField = "customerName"
	SortCustomerEmail SortField = "customerEmail"
	SortProductName   SortField = "productName"
	SortVendorName    SortField = "vendorName"
	SortDate          SortField = "date"
	SortPaymentMethod SortField = "paymentMethod"
	SortUSDAmount     SortField = "usdAmount"
	SortStatus        SortField = "status"
)

func (f SortField) Valid() bool {
	switch f {
	case SortCustomerName, SortCustomerEmail, SortProductName, SortVendorName,
		SortDate, SortPaymentMethod, SortUSDAmount, SortStatus:
		return true
	}
	return false
}

// Comparator resolves the field to its ordering function once, so sorting
// a result set dispatches on the field name a single time per query
// instead of once per comparison. Ties break on sale id to keep cursor
// positions stable.
func (f SortField) Comparator(desc bool) func(a, b domain.Sale) int {
	var cmp func(a, b domain.Sale) int
	switch f {
	case SortCustomerName:
		cmp = func(a, b domain.Sale) int { return foldCompare(a.CustomerName, b.CustomerName) }
	case SortCustomerEmail:
		cmp = func(a, b domain.Sale) int { return foldCompare(a.CustomerEmail, b.CustomerEmail) }
	case SortProductName:
		cmp = func(a, b domain.Sale) int { return foldCompare(a.ProductName, b.ProductName) }
	case SortVendorName:
		cmp = func(a, b domain.Sale) int { return foldCompare(a.VendorName, b.VendorName) }
	case SortPaymentMethod:
		cmp = func(a, b domain.Sale) int { return foldCompare(a.PaymentMethod, b.PaymentMethod) }
	case SortStatus:
		cmp = func(a, b domain.Sale) int { return foldCompare(a.Status, b.Status) }
	case SortUSDAmount:
		cmp = func(a, b domain.Sale) int {
			switch {
			case a.USDAmount < b.USDAmount:
				return -1
			case a.USDAmount > b.USDAmount:
				return 1
			}
			return 0
		}
	default: // SortDate
		cmp = func(a, b domain.Sale) int {
			switch {
			case a.Date.Before(b.Date):
				return -1
			case a.Date.After(b.Date):
				return 1
			}
			return 0
		}
	}

	return func(a, b domain.Sale) int {
		c := cmp(a, b)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if desc {
			c = -c
		}
		return c
	}
}

func foldCompare(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// SalesQuery is the shape of query the store can execute natively. It
// mirrors a single-field-index document store: one optional equality on
// status, one order-by, and a cursor anchored on a previously returned
// document. Combining the equality with an order-by on a different field
// yields ErrMissingIndex.
type SalesQuery struct {
	// Status, when non-empty, is an equality filter pushed to the store.
	Status string
	// OrderBy defaults to SortDate when empty.
	OrderBy SortField
	Desc    bool
	// StartAfterID resumes after the named document (forward paging);
	// StartAtID resumes at it (backward paging). At most one is set. A
	// cursor naming a document that no longer exists fails ErrNotFound.
	StartAfterID string
	StartAtID    string
	// Limit caps the raw page size. Zero means no cap.
	Limit int
}

func (q SalesQuery) Order() SortField {
	if q.OrderBy == "" {
		return SortDate
	}
	return q.OrderBy
}

// NeedsCompositeIndex reports whether the query combines an equality
// filter with an order on a different field.
func (q SalesQuery) NeedsCompositeIndex() bool {
	return q.Status != "" && q.Order() != SortStatus
}
