package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ventaslink/backend/internal/domain"
	"ventaslink/backend/internal/salesquery"
	"ventaslink/backend/internal/service"
	"ventaslink/backend/internal/store"
)

type API struct {
	service       *service.Service
	engine        *salesquery.Engine
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
	log           *zap.Logger
}

func New(svc *service.Service, engine *salesquery.Engine, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		engine:        engine,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
		log:           logger,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current
// or previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, domain.RoleSeller, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/sales/stats", a.requireAuth(a.handleSalesStats, domain.RoleSeller, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/sales/export", a.requireAuth(a.handleSalesExport, domain.RoleSeller, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, domain.RoleSeller, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/clients", a.requireAuth(a.handleClients, domain.RoleSeller, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/clients/resolve", a.requireAuth(a.handleResolveClient, domain.RoleSeller, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/clients/", a.requireAuth(a.handleClientActions, domain.RoleSeller, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, domain.RoleSeller, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/vendors", a.requireAuth(a.handleVendors, domain.RoleSeller, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/vendors/", a.requireAuth(a.handleVendorActions, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/reference/sources", a.requireAuth(a.handleSources, domain.RoleSeller, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/reference/payment-methods", a.requireAuth(a.handlePaymentMethods, domain.RoleSeller, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/reference/evidence-types", a.requireAuth(a.handleEvidenceTypes, domain.RoleSeller, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/dashboard/summary", a.requireAuth(a.handleDashboard, domain.RoleSeller, domain.RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-CSRF-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		requestID := uuid.NewString()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// csrfExemptPaths lists paths exempt from CSRF validation. Login is
// excluded because it is called before any CSRF token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// submitSaleRequest is the sale form payload: the resolution inputs plus
// the sale itself. Client snapshot fields on the sale are filled from the
// resolution result, not trusted from the caller. Value is the raw form
// amount; decimal-comma input is accepted and it takes precedence over a
// pre-parsed amount.
type submitSaleRequest struct {
	SelectedClientID string `json:"selectedClientId,omitempty"`
	Value            string `json:"value,omitempty"`
	domain.SaleCreateRequest
}

type submitSaleResponse struct {
	Sale                domain.Sale `json:"sale"`
	DeactivatedClientID string      `json:"deactivatedClientId,omitempty"`
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filters, page, err := parseSalesListing(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		// Sellers only ever see their own sales.
		if actor, ok := service.ActorFromContext(r.Context()); ok && actor.Role == domain.RoleSeller {
			filters.VendorID = actor.VendorID
		}
		result, err := a.engine.FetchSalesPage(r.Context(), filters, page)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case http.MethodPost:
		var req submitSaleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Value != "" {
			parsed := domain.ValidateSaleValue(req.Value)
			if !parsed.IsValid {
				writeError(w, http.StatusBadRequest, errors.New(parsed.Error))
				return
			}
			req.SaleCreateRequest.Amount = parsed.NormalizedValue
		}

		resolution, err := a.service.ResolveClientForSale(r.Context(), domain.ResolveClientRequest{
			SelectedClientID: req.SelectedClientID,
			Name:             req.CustomerName,
			Email:            req.CustomerEmail,
			Phone:            req.CustomerPhone,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		req.SaleCreateRequest.ClientID = resolution.Client.ID
		req.SaleCreateRequest.CustomerName = resolution.Client.Name
		req.SaleCreateRequest.CustomerEmail = resolution.Client.Email
		req.SaleCreateRequest.CustomerPhone = resolution.Client.Phone

		sale, err := a.service.CreateSale(r.Context(), req.SaleCreateRequest)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, submitSaleResponse{
			Sale:                sale,
			DeactivatedClientID: resolution.DeactivatedClientID,
		})

	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSalesStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	dateFrom, err := parseDateParam(r, "dateFrom", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dateTo, err := parseDateParam(r, "dateTo", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, a.engine.SalesStats(r.Context(), dateFrom, dateTo))
}

func (a *API) handleSalesExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	filters, _, err := parseSalesListing(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if actor, ok := service.ActorFromContext(r.Context()); ok && actor.Role == domain.RoleSeller {
		filters.VendorID = actor.VendorID
	}

	rows, err := a.engine.FetchAllSalesForExport(r.Context(), filters, 0)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sales_filtered.csv"`)
	// UTF-8 BOM so spreadsheet imports pick the right encoding.
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return
	}
	if err := salesquery.WriteCSV(w, rows); err != nil {
		a.log.Warn("csv export write failed", zap.Error(err))
	}
}

type statusChangeRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

type commentRequest struct {
	Message string `json:"message"`
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sales/")
	saleID, action, _ := strings.Cut(rest, "/")
	if saleID == "" {
		writeError(w, http.StatusNotFound, errors.New("missing sale id"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		sale, err := a.service.GetSale(r.Context(), saleID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)

	case action == "status" && r.Method == http.MethodPatch:
		var req statusChangeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var (
			sale domain.Sale
			err  error
		)
		if comment := strings.TrimSpace(req.Comment); comment != "" {
			sale, err = a.service.UpdateSaleStatusWithComment(r.Context(), saleID, req.Status, comment)
		} else {
			sale, err = a.service.UpdateSaleStatus(r.Context(), saleID, req.Status)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)

	case action == "comments" && r.Method == http.MethodPost:
		var req commentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.AddSaleComment(r.Context(), saleID, req.Message)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)

	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleResolveClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ResolveClientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resolution, err := a.service.ResolveClientForSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolution)
}

type createClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

func (a *API) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("all") != "true"
		clients, err := a.service.ListClients(r.Context(), activeOnly)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
	case http.MethodPost:
		var req createClientRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		client, err := a.service.CreateClient(r.Context(), req.Name, req.Email, req.Phone)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, client)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleClientActions(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimPrefix(r.URL.Path, "/api/v1/clients/")
	if clientID == "" || strings.Contains(clientID, "/") {
		writeError(w, http.StatusNotFound, errors.New("missing client id"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var patch domain.ClientPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.service.UpdateClient(r.Context(), clientID, patch); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case http.MethodDelete:
		// Clients are never hard-deleted, only deactivated.
		if err := a.service.DeactivateClient(r.Context(), clientID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("all") != "true"
		products, err := a.service.ListProducts(r.Context(), activeOnly)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var product domain.Product
		if err := decodeJSON(r, &product); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateProduct(r.Context(), product)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	if productID == "" || r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}
	var product domain.Product
	if err := decodeJSON(r, &product); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product.ID = productID
	updated, err := a.service.UpdateProduct(r.Context(), product)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type createVendorRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Position string `json:"position,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
	Password string `json:"password"`
}

func (a *API) handleVendors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("all") != "true"
		vendors, err := a.service.ListVendors(r.Context(), activeOnly)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"vendors": vendors})
	case http.MethodPost:
		var req createVendorRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		hash, err := HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		vendor, err := a.service.CreateVendor(r.Context(), domain.Vendor{
			Name:     req.Name,
			Email:    req.Email,
			Role:     req.Role,
			Position: req.Position,
			PhotoURL: req.PhotoURL,
		}, hash)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, vendor)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleVendorActions(w http.ResponseWriter, r *http.Request) {
	vendorID := strings.TrimPrefix(r.URL.Path, "/api/v1/vendors/")
	if vendorID == "" || r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}
	var vendor domain.Vendor
	if err := decodeJSON(r, &vendor); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	vendor.ID = vendorID
	updated, err := a.service.UpdateVendor(r.Context(), vendor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type createReferenceRequest struct {
	Name string `json:"name"`
}

func (a *API) handleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sources, err := a.service.ListSources(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
	case http.MethodPost:
		var req createReferenceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		source, err := a.service.CreateSource(r.Context(), req.Name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, source)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		methods, err := a.service.ListPaymentMethods(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payment_methods": methods})
	case http.MethodPost:
		var req createReferenceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		method, err := a.service.CreatePaymentMethod(r.Context(), req.Name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, method)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEvidenceTypes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		types, err := a.service.ListEvidenceTypes(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"evidence_types": types})
	case http.MethodPost:
		var req createReferenceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		evidenceType, err := a.service.CreateEvidenceType(r.Context(), req.Name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, evidenceType)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.engine.DashboardSummary(r.Context()))
}

// parseSalesListing builds filters and paging from list query params.
func parseSalesListing(r *http.Request) (salesquery.Filters, salesquery.PageRequest, error) {
	q := r.URL.Query()

	filters := salesquery.Filters{
		Text:      strings.TrimSpace(q.Get("search")),
		ProductID: q.Get("product"),
		VendorID:  q.Get("vendor"),
	}
	if status := q.Get("status"); status != "" {
		if !domain.ValidStatus(status) {
			return salesquery.Filters{}, salesquery.PageRequest{}, fmt.Errorf("invalid status %q", status)
		}
		filters.Status = status
	}

	var err error
	if filters.DateFrom, err = parseDateParam(r, "dateFrom", false); err != nil {
		return salesquery.Filters{}, salesquery.PageRequest{}, err
	}
	if filters.DateTo, err = parseDateParam(r, "dateTo", true); err != nil {
		return salesquery.Filters{}, salesquery.PageRequest{}, err
	}

	if sortBy := q.Get("sortBy"); sortBy != "" {
		field := store.SortField(sortBy)
		if !field.Valid() {
			return salesquery.Filters{}, salesquery.PageRequest{}, fmt.Errorf("invalid sortBy %q", sortBy)
		}
		filters.SortBy = field
	}
	if sortDir := q.Get("sortDir"); sortDir == "asc" {
		filters.SortDir = salesquery.SortAsc
	}

	page := salesquery.PageRequest{
		PageSize:  25,
		Cursor:    q.Get("cursor"),
		Direction: q.Get("direction"),
	}
	if raw := q.Get("pageSize"); raw != "" {
		var size int
		if _, err := fmt.Sscanf(raw, "%d", &size); err != nil || size < 1 || size > 100 {
			return salesquery.Filters{}, salesquery.PageRequest{}, fmt.Errorf("invalid pageSize %q", raw)
		}
		page.PageSize = size
	}
	return filters, page, nil
}

// parseDateParam reads a YYYY-MM-DD query param. endOfDay pushes the
// bound to the last instant of the day so dateTo is inclusive.
func parseDateParam(r *http.Request, name string, endOfDay bool) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
