package domain

import "time"

// Sale status values. A sale is created pending; only admins move it to
// approved or rejected.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Sale types.
const (
	SaleTypeIndividual = "individual"
	SaleTypeGroup      = "group"
)

// Vendor roles.
const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

// Supported sale currencies. usdAmount carries the normalized value used
// for every cross-currency aggregation.
const (
	CurrencyUSD = "USD"
	CurrencyMXN = "MXN"
	CurrencyCOP = "COP"
)

func ValidCurrency(c string) bool {
	return c == CurrencyUSD || c == CurrencyMXN || c == CurrencyCOP
}

func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// SaleUser is a participant in a group sale.
type SaleUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Client is a purchasing contact. Its id is always the slug of its email,
// and at most one active client exists per email: changing the email of an
// existing client deactivates the old record and creates a new one.
type Client struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone,omitempty"`
	Users          []SaleUser `json:"users,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastPurchaseAt *time.Time `json:"lastPurchaseAt,omitempty"`
}

// ClientPatch is a partial update. Nil fields are left untouched.
type ClientPatch struct {
	Name           *string     `json:"name,omitempty"`
	Email          *string     `json:"email,omitempty"`
	Phone          *string     `json:"phone,omitempty"`
	Active         *bool       `json:"active,omitempty"`
	LastPurchaseAt *time.Time  `json:"lastPurchaseAt,omitempty"`
	Users          *[]SaleUser `json:"users,omitempty"`
}

// ClientResolution is the outcome of resolving a sale's customer to a
// client record. DeactivatedClientID is set when the resolution retired an
// old record because the contact email changed, so callers can surface a
// confirmation message.
type ClientResolution struct {
	Client              Client `json:"client"`
	DeactivatedClientID string `json:"deactivatedClientId,omitempty"`
}

// Vendor is a user account: a seller registering sales or an admin
// reviewing them. Its id is the slug of its email. PasswordHash is part of
// the stored document but must never leave the API boundary; handlers
// return Public() copies.
type Vendor struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PhotoURL     string     `json:"photoUrl,omitempty"`
	Position     string     `json:"position,omitempty"`
	Role         string     `json:"role"`
	Active       bool       `json:"active"`
	PasswordHash string     `json:"passwordHash,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// Public returns a copy safe to serialize in API responses.
func (v Vendor) Public() Vendor {
	v.PasswordHash = ""
	return v
}

// Product is a sellable item with a slug/sku id.
type Product struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SKU          string    `json:"sku"`
	BaseCurrency string    `json:"baseCurrency"`
	BasePrice    float64   `json:"basePrice"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Reference entities backing form dropdowns.
type Source struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type PaymentMethod struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type EvidenceType struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaleComment is one entry of a sale's append-only comment trail.
type SaleComment struct {
	ID            string    `json:"id"`
	Message       string    `json:"message"`
	CreatedBy     string    `json:"createdBy"`
	CreatedByName string    `json:"createdByName"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Sale is one transaction. Client, product and vendor fields are
// denormalized snapshots taken at registration time. The id is derived
// from (customerEmail, calendar date, productId), so resubmitting the same
// logical sale updates the stored document instead of duplicating it.
type Sale struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	ClientID      string `json:"clientId"`
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	CustomerPhone string `json:"customerPhone,omitempty"`

	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`

	VendorID   string `json:"vendorId"`
	VendorName string `json:"vendorName"`

	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	USDAmount float64   `json:"usdAmount"`
	Date      time.Time `json:"date"`

	PaymentMethod string `json:"paymentMethod"`
	Source        string `json:"source"`
	Week          int    `json:"week"`
	Iteration     int    `json:"iteration"`
	EvidenceType  string `json:"evidenceType,omitempty"`
	EvidenceValue string `json:"evidenceValue,omitempty"`

	Status string `json:"status"`

	Users    []SaleUser    `json:"users,omitempty"`
	Comments []SaleComment `json:"comments,omitempty"`

	CreatedBy string     `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// SaleCreateRequest is the input of the idempotent sale upsert. Client
// fields are expected to come from a prior ClientResolution.
type SaleCreateRequest struct {
	Type string `json:"type"`

	ClientID      string `json:"clientId"`
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	CustomerPhone string `json:"customerPhone,omitempty"`

	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`

	VendorID   string `json:"vendorId"`
	VendorName string `json:"vendorName"`

	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	USDAmount float64   `json:"usdAmount"`
	Date      time.Time `json:"date"`

	PaymentMethod string `json:"paymentMethod"`
	Source        string `json:"source"`
	Week          int    `json:"week"`
	Iteration     int    `json:"iteration"`
	EvidenceType  string `json:"evidenceType,omitempty"`
	EvidenceValue string `json:"evidenceValue,omitempty"`

	Users []SaleUser `json:"users,omitempty"`

	// KeepStatus preserves the stored status when resubmitting an existing
	// sale. The default (false) re-sets status to pending on every upsert,
	// treating a resubmission as a fresh review request.
	KeepStatus bool `json:"keepStatus,omitempty"`
}

// ResolveClientRequest is the input of client resolution for a sale form.
type ResolveClientRequest struct {
	SelectedClientID string `json:"selectedClientId,omitempty"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	VendorID    string `json:"vendor_id"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated vendor attached to a request context.
type Actor struct {
	VendorID string
	Name     string
	Role     string
}

// SalesStats backs the KPI cards above the sales table.
type SalesStats struct {
	PendingCount   int     `json:"pendingCount"`
	ApprovedCount  int     `json:"approvedCount"`
	PendingAmount  float64 `json:"pendingAmount"`
	ApprovedAmount float64 `json:"approvedAmount"`
}

// DashboardSummary aggregates the landing-page KPIs. Each field is fetched
// independently; a failing metric zeroes its own field only.
type DashboardSummary struct {
	TotalUSD            float64 `json:"totalUsd"`
	ClientsCount        int     `json:"clientsCount"`
	ActiveProductsCount int     `json:"activeProductsCount"`
	ActiveSellersCount  int     `json:"activeSellersCount"`
}
