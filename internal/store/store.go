package store

import (
	"context"
	"errors"
	"time"

	"ventaslink/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingIndex is returned by QuerySales when the requested plan
	// combines an equality filter with an order-by on a different field.
	// Satisfying that shape needs a composite index which this deployment
	// does not maintain; query planning is expected to avoid the shape
	// proactively rather than recover from this error.
	ErrMissingIndex = errors.New("composite index required")
)

// Repository is the document-store surface the application is built on.
// Ids are caller-assigned (deterministic slugs or composite keys); Put
// methods have replace semantics, patch methods update named fields only,
// and AppendSaleComment is an atomic array append so concurrent comment
// writes never clobber each other. Everything else is last-write-wins.
type Repository interface {
	// Clients.
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	// GetClientByEmail prefers the active record for the email; if none is
	// active it returns the most recently created match.
	GetClientByEmail(ctx context.Context, email string) (*domain.Client, error)
	PutClient(ctx context.Context, client domain.Client) error
	UpdateClientFields(ctx context.Context, id string, patch domain.ClientPatch) error
	ListClients(ctx context.Context, activeOnly bool) ([]domain.Client, error)
	CountClients(ctx context.Context) (int, error)

	// Sales.
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	PutSale(ctx context.Context, sale domain.Sale) error
	UpdateSaleStatus(ctx context.Context, id string, status string, updatedAt time.Time) (*domain.Sale, error)
	AppendSaleComment(ctx context.Context, id string, comment domain.SaleComment) (*domain.Sale, error)
	// UpdateSaleStatusWithComment composes the status patch and the comment
	// append in a single write.
	UpdateSaleStatusWithComment(ctx context.Context, id string, status string, comment domain.SaleComment, updatedAt time.Time) (*domain.Sale, error)
	QuerySales(ctx context.Context, q SalesQuery) ([]domain.Sale, error)

	// Products.
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	PutProduct(ctx context.Context, product domain.Product) error
	ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error)
	CountActiveProducts(ctx context.Context) (int, error)

	// Vendors.
	GetVendor(ctx context.Context, id string) (*domain.Vendor, error)
	GetVendorByEmail(ctx context.Context, email string) (*domain.Vendor, error)
	PutVendor(ctx context.Context, vendor domain.Vendor) error
	UpdateVendorPassword(ctx context.Context, id string, passwordHash string) error
	ListVendors(ctx context.Context, activeOnly bool) ([]domain.Vendor, error)
	CountActiveSellers(ctx context.Context) (int, error)

	// Reference data.
	ListSources(ctx context.Context) ([]domain.Source, error)
	PutSource(ctx context.Context, source domain.Source) error
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	PutPaymentMethod(ctx context.Context, method domain.PaymentMethod) error
	ListEvidenceTypes(ctx context.Context) ([]domain.EvidenceType, error)
	PutEvidenceType(ctx context.Context, evidenceType domain.EvidenceType) error
}
