package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ventaslink/backend/internal/domain"
	"ventaslink/backend/internal/store"
	"ventaslink/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var (
	// ErrForbidden marks a role check failure.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition marks a status change out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Service implements the write side of the CRM: client resolution, the
// idempotent sale upsert, status transitions, comments and the CRUD
// surfaces for clients, products, vendors and reference data.
type Service struct {
	repo store.Repository
	log  *zap.Logger
	now  func() time.Time
}

func New(repo store.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo: repo,
		log:  logger,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

// ResolveClientForSale maps the customer of an incoming sale onto a
// client record. Resolution is all-or-nothing: any lookup or write error
// propagates and no sale must be created against a half-resolved client.
//
// Three paths:
//  1. no pre-selected client: reuse the active client holding the email,
//     or create one keyed on the email slug;
//  2. pre-selected client whose stored email matches: update name/phone
//     in place when they changed;
//  3. pre-selected client whose email differs: the contact identity
//     changed, so the old record is deactivated (never deleted) and a new
//     one is created under the new email. The deactivated id is returned
//     so the caller can surface it.
func (s *Service) ResolveClientForSale(ctx context.Context, req domain.ResolveClientRequest) (domain.ClientResolution, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if name == "" || email == "" {
		return domain.ClientResolution{}, fmt.Errorf("%w: name and email are required", store.ErrInvalidInput)
	}

	if req.SelectedClientID == "" {
		existing, err := s.repo.GetClientByEmail(ctx, email)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.ClientResolution{}, fmt.Errorf("resolve client: %w", err)
		}
		if existing != nil && existing.Active {
			return domain.ClientResolution{Client: *existing}, nil
		}
		client, err := s.createClient(ctx, name, email, phone)
		if err != nil {
			return domain.ClientResolution{}, err
		}
		return domain.ClientResolution{Client: client}, nil
	}

	selected, err := s.repo.GetClient(ctx, req.SelectedClientID)
	if errors.Is(err, store.ErrNotFound) {
		client, err := s.createClient(ctx, name, email, phone)
		if err != nil {
			return domain.ClientResolution{}, err
		}
		return domain.ClientResolution{Client: client}, nil
	}
	if err != nil {
		return domain.ClientResolution{}, fmt.Errorf("resolve client: %w", err)
	}

	if strings.EqualFold(selected.Email, email) {
		if selected.Name != name || selected.Phone != phone {
			patch := domain.ClientPatch{Name: &name, Phone: &phone}
			if err := s.repo.UpdateClientFields(ctx, selected.ID, patch); err != nil {
				return domain.ClientResolution{}, fmt.Errorf("update client: %w", err)
			}
			selected.Name = name
			selected.Phone = phone
		}
		return domain.ClientResolution{Client: *selected}, nil
	}

	// Identity change: retire the old record, never mutate email in place.
	inactive := false
	if err := s.repo.UpdateClientFields(ctx, selected.ID, domain.ClientPatch{Active: &inactive}); err != nil {
		return domain.ClientResolution{}, fmt.Errorf("deactivate client: %w", err)
	}
	client, err := s.createClient(ctx, name, email, phone)
	if err != nil {
		return domain.ClientResolution{}, err
	}
	s.log.Info("client identity changed",
		zap.String("deactivated_client_id", selected.ID),
		zap.String("new_client_id", client.ID))
	return domain.ClientResolution{Client: client, DeactivatedClientID: selected.ID}, nil
}

func (s *Service) createClient(ctx context.Context, name, email, phone string) (domain.Client, error) {
	client := domain.Client{
		ID:        domain.SlugifyEmail(email),
		Name:      name,
		Email:     email,
		Phone:     phone,
		Active:    true,
		CreatedAt: s.now(),
	}
	if client.ID == "" {
		return domain.Client{}, fmt.Errorf("%w: email produces an empty id", store.ErrInvalidInput)
	}
	if err := s.repo.PutClient(ctx, client); err != nil {
		return domain.Client{}, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

// CreateSale is the idempotent sale upsert. The id derives from
// (customerEmail, calendar date, productId); resubmitting that key
// replaces the stored document, preserving its original createdAt and
// stamping updatedAt. Status handling follows req.KeepStatus: by default
// every upsert re-enters pending review, with KeepStatus the stored
// status of an existing sale survives resubmission.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if err := validateSaleRequest(req); err != nil {
		return domain.Sale{}, err
	}

	now := s.now()
	saleID := domain.SaleIDFrom(req.CustomerEmail, req.Date, req.ProductID)

	existing, err := s.repo.GetSale(ctx, saleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Sale{}, fmt.Errorf("read existing sale: %w", err)
	}

	saleType := req.Type
	if saleType == "" {
		saleType = domain.SaleTypeIndividual
	}
	week := req.Week
	if week == 0 {
		week = domain.WeekOf(req.Date)
	}
	createdBy := req.VendorID
	if actor, ok := ActorFromContext(ctx); ok {
		createdBy = actor.VendorID
	}

	sale := domain.Sale{
		ID:   saleID,
		Type: saleType,

		ClientID:      req.ClientID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,

		ProductID:   req.ProductID,
		ProductName: req.ProductName,

		VendorID:   req.VendorID,
		VendorName: req.VendorName,

		Amount:    req.Amount,
		Currency:  req.Currency,
		USDAmount: req.USDAmount,
		Date:      req.Date.UTC(),

		PaymentMethod: req.PaymentMethod,
		Source:        req.Source,
		Week:          week,
		Iteration:     req.Iteration,
		EvidenceType:  req.EvidenceType,
		EvidenceValue: req.EvidenceValue,

		Status: domain.StatusPending,
		Users:  req.Users,

		CreatedBy: createdBy,
		CreatedAt: now,
	}

	if existing != nil {
		sale.CreatedAt = existing.CreatedAt
		sale.Comments = existing.Comments
		t := now
		sale.UpdatedAt = &t
		if req.KeepStatus {
			sale.Status = existing.Status
		}
	}

	if err := s.repo.PutSale(ctx, sale); err != nil {
		return domain.Sale{}, fmt.Errorf("write sale: %w", err)
	}

	// Purchase recency on the client record is best-effort metadata.
	if sale.ClientID != "" {
		patch := domain.ClientPatch{LastPurchaseAt: &sale.Date}
		if err := s.repo.UpdateClientFields(ctx, sale.ClientID, patch); err != nil {
			s.log.Warn("failed to update client last purchase",
				zap.String("client_id", sale.ClientID), zap.Error(err))
		}
	}

	s.log.Info("sale upserted",
		zap.String("sale_id", sale.ID),
		zap.Bool("resubmission", existing != nil),
		zap.String("status", sale.Status))
	return sale, nil
}

func validateSaleRequest(req domain.SaleCreateRequest) error {
	if strings.TrimSpace(req.CustomerEmail) == "" ||
		strings.TrimSpace(req.CustomerName) == "" ||
		req.ProductID == "" || req.VendorID == "" {
		return fmt.Errorf("%w: customer, product and vendor are required", store.ErrInvalidInput)
	}
	if req.Date.IsZero() {
		return fmt.Errorf("%w: sale date is required", store.ErrInvalidInput)
	}
	if req.Amount <= 0 || req.USDAmount <= 0 {
		return fmt.Errorf("%w: amounts must be greater than 0", store.ErrInvalidInput)
	}
	if !domain.ValidCurrency(req.Currency) {
		return fmt.Errorf("%w: unsupported currency %q", store.ErrInvalidInput, req.Currency)
	}
	if req.Type == domain.SaleTypeGroup && len(req.Users) == 0 {
		return fmt.Errorf("%w: group sale needs at least one participant", store.ErrInvalidInput)
	}
	if req.EvidenceType != "" {
		if res := domain.ValidateEvidenceValue(req.EvidenceType, req.EvidenceValue); !res.IsValid {
			return fmt.Errorf("%w: %s", store.ErrInvalidInput, res.Error)
		}
	}
	return nil
}

// UpdateSaleStatus applies an admin review decision. Only pending sales
// may transition; approved and rejected are terminal for every reachable
// operation. The store primitive itself stays unconditional.
func (s *Service) UpdateSaleStatus(ctx context.Context, saleID string, status string) (domain.Sale, error) {
	if err := s.checkStatusChange(ctx, saleID, status); err != nil {
		return domain.Sale{}, err
	}
	updated, err := s.repo.UpdateSaleStatus(ctx, saleID, status, s.now())
	if err != nil {
		return domain.Sale{}, fmt.Errorf("update sale status: %w", err)
	}
	s.log.Info("sale status changed", zap.String("sale_id", saleID), zap.String("status", status))
	return *updated, nil
}

// AddSaleComment appends to the sale's comment trail. The append is
// atomic at the store, so concurrent comments never overwrite each other.
// Comments may be added at any status.
func (s *Service) AddSaleComment(ctx context.Context, saleID string, message string) (domain.Sale, error) {
	comment, err := s.buildComment(ctx, message)
	if err != nil {
		return domain.Sale{}, err
	}
	updated, err := s.repo.AppendSaleComment(ctx, saleID, comment)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("add sale comment: %w", err)
	}
	return *updated, nil
}

// UpdateSaleStatusWithComment performs the review decision and its
// explanatory comment in a single write.
func (s *Service) UpdateSaleStatusWithComment(ctx context.Context, saleID string, status string, message string) (domain.Sale, error) {
	if err := s.checkStatusChange(ctx, saleID, status); err != nil {
		return domain.Sale{}, err
	}
	comment, err := s.buildComment(ctx, message)
	if err != nil {
		return domain.Sale{}, err
	}
	updated, err := s.repo.UpdateSaleStatusWithComment(ctx, saleID, status, comment, s.now())
	if err != nil {
		return domain.Sale{}, fmt.Errorf("update status with comment: %w", err)
	}
	s.log.Info("sale status changed", zap.String("sale_id", saleID), zap.String("status", status))
	return *updated, nil
}

func (s *Service) checkStatusChange(ctx context.Context, saleID string, status string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if status != domain.StatusApproved && status != domain.StatusRejected {
		return fmt.Errorf("%w: target status must be approved or rejected", store.ErrInvalidInput)
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return fmt.Errorf("load sale: %w", err)
	}
	if sale.Status != domain.StatusPending {
		return fmt.Errorf("%w: sale is %s", ErrInvalidTransition, sale.Status)
	}
	return nil
}

func (s *Service) buildComment(ctx context.Context, message string) (domain.SaleComment, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.SaleComment{}, fmt.Errorf("%w: comment message is required", store.ErrInvalidInput)
	}
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleComment{}, fmt.Errorf("%w: no authenticated actor", ErrForbidden)
	}
	now := s.now()
	return domain.SaleComment{
		ID:            fmt.Sprintf("comment_%d", now.UnixMilli()),
		Message:       message,
		CreatedBy:     actor.VendorID,
		CreatedByName: actor.Name,
		CreatedAt:     now,
	}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// Clients.

func (s *Service) ListClients(ctx context.Context, activeOnly bool) ([]domain.Client, error) {
	return s.repo.ListClients(ctx, activeOnly)
}

func (s *Service) CreateClient(ctx context.Context, name, email, phone string) (domain.Client, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return domain.Client{}, fmt.Errorf("%w: name and email are required", store.ErrInvalidInput)
	}
	return s.createClient(ctx, name, email, strings.TrimSpace(phone))
}

func (s *Service) UpdateClient(ctx context.Context, clientID string, patch domain.ClientPatch) error {
	if clientID == "" {
		return fmt.Errorf("%w: client id is required", store.ErrInvalidInput)
	}
	return s.repo.UpdateClientFields(ctx, clientID, patch)
}

func (s *Service) DeactivateClient(ctx context.Context, clientID string) error {
	inactive := false
	return s.repo.UpdateClientFields(ctx, clientID, domain.ClientPatch{Active: &inactive})
}

// Products.

func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, activeOnly)
}

func (s *Service) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product.Name = strings.TrimSpace(product.Name)
	product.SKU = strings.TrimSpace(product.SKU)
	if product.Name == "" || product.SKU == "" {
		return domain.Product{}, fmt.Errorf("%w: name and sku are required", store.ErrInvalidInput)
	}
	if !domain.ValidCurrency(product.BaseCurrency) {
		return domain.Product{}, fmt.Errorf("%w: unsupported currency %q", store.ErrInvalidInput, product.BaseCurrency)
	}
	if product.BasePrice <= 0 {
		return domain.Product{}, fmt.Errorf("%w: base price must be greater than 0", store.ErrInvalidInput)
	}
	if product.ID == "" {
		product.ID = product.SKU
	}
	product.Active = true
	product.CreatedAt = s.now()
	if err := s.repo.PutProduct(ctx, product); err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	existing, err := s.repo.GetProduct(ctx, product.ID)
	if err != nil {
		return domain.Product{}, err
	}
	product.CreatedAt = existing.CreatedAt
	if err := s.repo.PutProduct(ctx, product); err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

// Vendors.

func (s *Service) ListVendors(ctx context.Context, activeOnly bool) ([]domain.Vendor, error) {
	vendors, err := s.repo.ListVendors(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	for i := range vendors {
		vendors[i] = vendors[i].Public()
	}
	return vendors, nil
}

// CreateVendor registers a vendor account keyed on the slug of its email.
func (s *Service) CreateVendor(ctx context.Context, vendor domain.Vendor, passwordHash string) (domain.Vendor, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Vendor{}, err
	}
	vendor.Name = strings.TrimSpace(vendor.Name)
	vendor.Email = strings.TrimSpace(vendor.Email)
	if vendor.Name == "" || vendor.Email == "" {
		return domain.Vendor{}, fmt.Errorf("%w: name and email are required", store.ErrInvalidInput)
	}
	if vendor.Role != domain.RoleAdmin && vendor.Role != domain.RoleSeller {
		return domain.Vendor{}, fmt.Errorf("%w: role must be admin or seller", store.ErrInvalidInput)
	}
	vendor.ID = domain.SlugifyEmail(vendor.Email)
	vendor.Active = true
	vendor.PasswordHash = passwordHash
	vendor.CreatedAt = s.now()
	if err := s.repo.PutVendor(ctx, vendor); err != nil {
		return domain.Vendor{}, fmt.Errorf("create vendor: %w", err)
	}
	return vendor.Public(), nil
}

func (s *Service) UpdateVendor(ctx context.Context, vendor domain.Vendor) (domain.Vendor, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Vendor{}, err
	}
	existing, err := s.repo.GetVendor(ctx, vendor.ID)
	if err != nil {
		return domain.Vendor{}, err
	}
	vendor.Email = existing.Email
	vendor.PasswordHash = existing.PasswordHash
	vendor.CreatedAt = existing.CreatedAt
	t := s.now()
	vendor.UpdatedAt = &t
	if err := s.repo.PutVendor(ctx, vendor); err != nil {
		return domain.Vendor{}, fmt.Errorf("update vendor: %w", err)
	}
	return vendor.Public(), nil
}

// Reference data.

func (s *Service) ListSources(ctx context.Context) ([]domain.Source, error) {
	return s.repo.ListSources(ctx)
}

func (s *Service) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx)
}

func (s *Service) ListEvidenceTypes(ctx context.Context) ([]domain.EvidenceType, error) {
	return s.repo.ListEvidenceTypes(ctx)
}

func (s *Service) CreateSource(ctx context.Context, name string) (domain.Source, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Source{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Source{}, fmt.Errorf("%w: source name is required", store.ErrInvalidInput)
	}
	source := domain.Source{ID: xid.New("source"), Name: name, CreatedAt: s.now()}
	if err := s.repo.PutSource(ctx, source); err != nil {
		return domain.Source{}, fmt.Errorf("create source: %w", err)
	}
	return source, nil
}

func (s *Service) CreatePaymentMethod(ctx context.Context, name string) (domain.PaymentMethod, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PaymentMethod{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.PaymentMethod{}, fmt.Errorf("%w: payment method name is required", store.ErrInvalidInput)
	}
	method := domain.PaymentMethod{ID: xid.New("payment"), Name: name, CreatedAt: s.now()}
	if err := s.repo.PutPaymentMethod(ctx, method); err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("create payment method: %w", err)
	}
	return method, nil
}

func (s *Service) CreateEvidenceType(ctx context.Context, name string) (domain.EvidenceType, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.EvidenceType{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.EvidenceType{}, fmt.Errorf("%w: evidence type name is required", store.ErrInvalidInput)
	}
	evidenceType := domain.EvidenceType{ID: xid.New("evidence"), Name: name, CreatedAt: s.now()}
	if err := s.repo.PutEvidenceType(ctx, evidenceType); err != nil {
		return domain.EvidenceType{}, fmt.Errorf("create evidence type: %w", err)
	}
	return evidenceType, nil
}
