package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ventaslink/backend/internal/domain"
	"ventaslink/backend/internal/store"
)

// Store is a mutex-guarded map implementation of store.Repository. It is
// the dev/demo backend and the fixture for tests; PostgreSQL is used when
// DATABASE_URL is set.
type Store struct {
	mu             sync.RWMutex
	clients        map[string]domain.Client
	sales          map[string]domain.Sale
	products       map[string]domain.Product
	vendors        map[string]domain.Vendor
	sources        map[string]domain.Source
	paymentMethods map[string]domain.PaymentMethod
	evidenceTypes  map[string]domain.EvidenceType
}

func New() *Store {
	return &Store{
		clients:        map[string]domain.Client{},
		sales:          map[string]domain.Sale{},
		products:       map[string]domain.Product{},
		vendors:        map[string]domain.Vendor{},
		sources:        map[string]domain.Source{},
		paymentMethods: map[string]domain.PaymentMethod{},
		evidenceTypes:  map[string]domain.EvidenceType{},
	}
}

// NewSeeded builds a store pre-loaded with demo reference data, products
// and vendor accounts. Vendor passwords come from SEED_ADMIN_PASSWORD and
// SEED_SELLER_PASSWORD; hardcoded dev defaults are used (with a warning)
// when unset. Seed credentials never reach production deployments, which
// run on PostgreSQL.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, p := range []domain.Product{
		{ID: "chatgpt-live-workshop", Name: "Taller en vivo Domina ChatGPT", SKU: "chatgpt-live-workshop", BaseCurrency: domain.CurrencyMXN, BasePrice: 3660.22, Active: true},
		{ID: "ai-business-basics", Name: "AI para Negocios - Fundamentos", SKU: "ai-business-basics", BaseCurrency: domain.CurrencyUSD, BasePrice: 197, Active: true},
		{ID: "prompt-engineering-pro", Name: "Prompt Engineering Profesional", SKU: "prompt-engineering-pro", BaseCurrency: domain.CurrencyUSD, BasePrice: 299, Active: true},
		{ID: "automation-workshop", Name: "Automatización con IA", SKU: "automation-workshop", BaseCurrency: domain.CurrencyCOP, BasePrice: 450000, Active: true},
		{ID: "ai-writing-mastery", Name: "Escritura con IA - Nivel Experto", SKU: "ai-writing-mastery", BaseCurrency: domain.CurrencyUSD, BasePrice: 149, Active: true},
		{ID: "claude-advanced-course", Name: "Claude AI Avanzado", SKU: "claude-advanced-course", BaseCurrency: domain.CurrencyMXN, BasePrice: 2499, Active: true},
		{ID: "ai-productivity-bootcamp", Name: "Bootcamp de Productividad con IA", SKU: "ai-productivity-bootcamp", BaseCurrency: domain.CurrencyUSD, BasePrice: 399, Active: true},
		{ID: "midjourney-masterclass", Name: "Midjourney Masterclass", SKU: "midjourney-masterclass", BaseCurrency: domain.CurrencyCOP, BasePrice: 280000, Active: false},
	} {
		p.CreatedAt = now
		s.products[p.ID] = p
	}

	for _, src := range []domain.Source{
		{ID: "hotmart", Name: "Hotmart"},
		{ID: "linkedin", Name: "LinkedIn"},
		{ID: "youtube", Name: "YouTube"},
		{ID: "referral", Name: "Referral"},
		{ID: "facebook", Name: "Facebook"},
		{ID: "email_campaign", Name: "Campaña de correo"},
		{ID: "aspe", Name: "ASPE"},
		{ID: "manual", Name: "Manual"},
	} {
		src.CreatedAt = now
		s.sources[src.ID] = src
	}

	for _, pm := range []domain.PaymentMethod{
		{ID: "transfer", Name: "Transferencia"},
		{ID: "card", Name: "Tarjeta"},
		{ID: "paypal", Name: "PayPal"},
		{ID: "other", Name: "Otro"},
	} {
		pm.CreatedAt = now
		s.paymentMethods[pm.ID] = pm
	}

	for _, et := range []domain.EvidenceType{
		{ID: "url", Name: "URL"},
		{ID: "transaction_number", Name: "Número de transacción"},
	} {
		et.CreatedAt = now
		s.evidenceTypes[et.ID] = et
	}

	for _, v := range seedVendors(now) {
		s.vendors[v.ID] = v
	}

	return s
}

func seedVendors(now time.Time) []domain.Vendor {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	vendors := make([]domain.Vendor, 0, 3)
	for _, v := range []struct {
		name     string
		email    string
		role     string
		password string
	}{
		{"Angela Ojeda", "angela@academiadeia.com", domain.RoleAdmin, adminPwd},
		{"Angelica Bou", "angelica@academiadeia.com", domain.RoleSeller, sellerPwd},
		{"Carlos Rodriguez", "carlos@academiadeia.com", domain.RoleSeller, sellerPwd},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(v.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", v.email, err)
		}
		vendors = append(vendors, domain.Vendor{
			ID:           domain.SlugifyEmail(v.email),
			Name:         v.name,
			Email:        v.email,
			Role:         v.role,
			Active:       true,
			PasswordHash: string(hash),
			CreatedAt:    now,
		})
	}
	return vendors
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Clients.

func (s *Store) GetClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &client, nil
}

func (s *Store) GetClientByEmail(_ context.Context, email string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Client, 0, 1)
	for _, c := range s.clients {
		if strings.EqualFold(c.Email, email) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, store.ErrNotFound
	}
	for _, c := range matches {
		if c.Active {
			return &c, nil
		}
	}
	slices.SortFunc(matches, func(a, b domain.Client) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return &matches[0], nil
}

func (s *Store) PutClient(_ context.Context, client domain.Client) error {
	if client.ID == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
	return nil
}

func (s *Store) UpdateClientFields(_ context.Context, id string, patch domain.ClientPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[id]
	if !ok {
		return store.ErrNotFound
	}
	if patch.Name != nil {
		client.Name = *patch.Name
	}
	if patch.Email != nil {
		client.Email = *patch.Email
	}
	if patch.Phone != nil {
		client.Phone = *patch.Phone
	}
	if patch.Active != nil {
		client.Active = *patch.Active
	}
	if patch.LastPurchaseAt != nil {
		t := *patch.LastPurchaseAt
		client.LastPurchaseAt = &t
	}
	if patch.Users != nil {
		client.Users = slices.Clone(*patch.Users)
	}
	s.clients[id] = client
	return nil
}

func (s *Store) ListClients(_ context.Context, activeOnly bool) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Client) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out, nil
}

func (s *Store) CountClients(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients), nil
}

// Sales.

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Comments = slices.Clone(sale.Comments)
	return &sale, nil
}

func (s *Store) PutSale(_ context.Context, sale domain.Sale) error {
	if sale.ID == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[sale.ID] = sale
	return nil
}

func (s *Store) UpdateSaleStatus(_ context.Context, id string, status string, updatedAt time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patchSaleLocked(id, status, nil, updatedAt)
}

func (s *Store) AppendSaleComment(_ context.Context, id string, comment domain.SaleComment) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patchSaleLocked(id, "", &comment, time.Time{})
}

func (s *Store) UpdateSaleStatusWithComment(_ context.Context, id string, status string, comment domain.SaleComment, updatedAt time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patchSaleLocked(id, status, &comment, updatedAt)
}

// patchSaleLocked applies a partial update under the write lock, which is
// what makes the comment append atomic for this backend.
func (s *Store) patchSaleLocked(id string, status string, comment *domain.SaleComment, updatedAt time.Time) (*domain.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if status != "" {
		sale.Status = status
	}
	if comment != nil {
		sale.Comments = append(slices.Clone(sale.Comments), *comment)
	}
	if !updatedAt.IsZero() {
		t := updatedAt
		sale.UpdatedAt = &t
	}
	s.sales[id] = sale
	return &sale, nil
}

func (s *Store) QuerySales(_ context.Context, q store.SalesQuery) ([]domain.Sale, error) {
	if q.NeedsCompositeIndex() {
		return nil, store.ErrMissingIndex
	}

	s.mu.RLock()
	rows := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if q.Status != "" && sale.Status != q.Status {
			continue
		}
		rows = append(rows, sale)
	}
	s.mu.RUnlock()

	cmp := q.Order().Comparator(q.Desc)
	slices.SortFunc(rows, cmp)

	start := 0
	switch {
	case q.StartAfterID != "":
		idx := slices.IndexFunc(rows, func(sale domain.Sale) bool { return sale.ID == q.StartAfterID })
		if idx < 0 {
			return nil, store.ErrNotFound
		}
		start = idx + 1
	case q.StartAtID != "":
		idx := slices.IndexFunc(rows, func(sale domain.Sale) bool { return sale.ID == q.StartAtID })
		if idx < 0 {
			return nil, store.ErrNotFound
		}
		start = idx
	}

	rows = rows[start:]
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return slices.Clone(rows), nil
}

// Products.

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) PutProduct(_ context.Context, product domain.Product) error {
	if product.ID == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	return nil
}

func (s *Store) ListProducts(_ context.Context, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *Store) CountActiveProducts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.products {
		if p.Active {
			count++
		}
	}
	return count, nil
}

// Vendors.

func (s *Store) GetVendor(_ context.Context, id string) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendor, ok := s.vendors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &vendor, nil
}

func (s *Store) GetVendorByEmail(_ context.Context, email string) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.vendors {
		if strings.EqualFold(v.Email, email) {
			return &v, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) PutVendor(_ context.Context, vendor domain.Vendor) error {
	if vendor.ID == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors[vendor.ID] = vendor
	return nil
}

func (s *Store) UpdateVendorPassword(_ context.Context, id string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vendor, ok := s.vendors[id]
	if !ok {
		return store.ErrNotFound
	}
	vendor.PasswordHash = passwordHash
	s.vendors[id] = vendor
	return nil
}

func (s *Store) ListVendors(_ context.Context, activeOnly bool) ([]domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		if activeOnly && !v.Active {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *Store) CountActiveSellers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, v := range s.vendors {
		if v.Active && v.Role == domain.RoleSeller {
			count++
		}
	}
	return count, nil
}

// Reference data.

func (s *Store) ListSources(_ context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PutSource(_ context.Context, source domain.Source) error {
	if source.ID == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[source.ID] = source
	return nil
}

func (s *Store) ListPaymentMethods(_ context.Context) ([]domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PaymentMethod, 0, len(s.paymentMethods))
	for _, pm := range s.paymentMethods {
		out = append(out, pm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PutPaymentMethod(_ context.Context, method domain.PaymentMethod) error {
	if method.ID == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentMethods[method.ID] = method
	return nil
}

func (s *Store) ListEvidenceTypes(_ context.Context) ([]domain.EvidenceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.EvidenceType, 0, len(s.evidenceTypes))
	for _, et := range s.evidenceTypes {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PutEvidenceType(_ context.Context, evidenceType domain.EvidenceType) error {
	if evidenceType.ID == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evidenceTypes[evidenceType.ID] = evidenceType
	return nil
}
