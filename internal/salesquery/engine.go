// Package salesquery builds constrained read queries against the sales
// collection and completes them in memory when the store cannot satisfy a
// combined filter+sort without a composite index.
package salesquery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"ventaslink/backend/internal/cache"
	"ventaslink/backend/internal/domain"
	"ventaslink/backend/internal/store"
)

const (
	// statsPageSize caps the "all matching rows" fetches behind the KPI
	// cards and the dashboard total.
	statsPageSize = 10000

	// exportPageSize is the raw page size of the export pager.
	exportPageSize = 1000

	// exportMaxRows is the default cap of FetchAllSalesForExport.
	exportMaxRows = 10000
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Filters is the full filter/sort state of a sales listing. Free-text is
// always applied client-side; the rest is pushed to the store only when
// the single-field-index contract allows it.
type Filters struct {
	Text      string          `json:"text,omitempty"`
	ProductID string          `json:"productId,omitempty"`
	VendorID  string          `json:"vendorId,omitempty"`
	Status    string          `json:"status,omitempty"`
	DateFrom  *time.Time      `json:"dateFrom,omitempty"`
	DateTo    *time.Time      `json:"dateTo,omitempty"`
	SortBy    store.SortField `json:"sortBy,omitempty"`
	SortDir   SortDirection   `json:"sortDir,omitempty"`
}

func (f Filters) sortField() store.SortField {
	if f.SortBy.Valid() {
		return f.SortBy
	}
	return store.SortDate
}

func (f Filters) descending() bool {
	return f.SortDir != SortAsc
}

// hasNonStatusFilters reports whether any filter other than status is
// active.
func (f Filters) hasNonStatusFilters() bool {
	return f.Text != "" || f.ProductID != "" || f.VendorID != "" ||
		f.DateFrom != nil || f.DateTo != nil
}

// PageRequest selects one page of a listing. Cursor is an opaque token
// from a previous SalesPage; Direction "prev" anchors the query at the
// cursor instead of after it.
type PageRequest struct {
	PageSize  int    `json:"pageSize"`
	Cursor    string `json:"cursor,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// SalesPage is one page of a listing.
//
// HasNextPage is a known-lossy heuristic: it reports whether the RAW
// store page was full, not whether filtered results remain. Under
// combined filters a page may hold fewer than pageSize rows while later
// raw pages still contain matches; callers must not assume exactly
// filled pages.
type SalesPage struct {
	Sales       []domain.Sale `json:"sales"`
	NextCursor  string        `json:"nextCursor,omitempty"`
	PrevCursor  string        `json:"prevCursor,omitempty"`
	HasNextPage bool          `json:"hasNextPage"`
	HasPrevPage bool          `json:"hasPrevPage"`
}

// Engine executes sales listings, aggregates and exports over a
// Repository, caching KPI aggregates for a short TTL.
type Engine struct {
	repo     store.Repository
	cache    cache.StatsCache
	statsTTL time.Duration
	log      *zap.Logger
}

func NewEngine(repo store.Repository, statsCache cache.StatsCache, statsTTL time.Duration, logger *zap.Logger) *Engine {
	if statsCache == nil {
		statsCache = cache.NoopStatsCache{}
	}
	if statsTTL <= 0 {
		statsTTL = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:     repo,
		cache:    statsCache,
		statsTTL: statsTTL,
		log:      logger,
	}
}

type cursorToken struct {
	ID string `json:"id"`
}

func encodeCursor(id string) string {
	raw, _ := json.Marshal(cursorToken{ID: id})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: bad cursor", store.ErrInvalidInput)
	}
	var c cursorToken
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" {
		return "", fmt.Errorf("%w: bad cursor", store.ErrInvalidInput)
	}
	return c.ID, nil
}

// plan decides how much of the filter/sort state can be pushed to the
// store:
//   - no filters: the requested sort goes to the store untouched;
//   - status as the only filter, sorted by status: one single-field index
//     covers both, push both;
//   - anything else: the store scans in the safe default order (date
//     descending) and the full filter/sort state is applied in memory over
//     the raw page.
func (f Filters) plan() (store.SalesQuery, bool) {
	noFilters := f.Status == "" && !f.hasNonStatusFilters()
	if noFilters {
		return store.SalesQuery{OrderBy: f.sortField(), Desc: f.descending()}, false
	}
	if !f.hasNonStatusFilters() && f.sortField() == store.SortStatus {
		return store.SalesQuery{Status: f.Status, OrderBy: store.SortStatus, Desc: f.descending()}, false
	}
	return store.SalesQuery{OrderBy: store.SortDate, Desc: true}, true
}

// FetchSalesPage retrieves one page of sales under the given filters.
// Cursors anchor positions in the RAW store ordering, so paging stays
// consistent even when the visible rows are narrowed client-side.
func (e *Engine) FetchSalesPage(ctx context.Context, f Filters, p PageRequest) (SalesPage, error) {
	if p.PageSize <= 0 {
		return SalesPage{}, fmt.Errorf("%w: page size must be positive", store.ErrInvalidInput)
	}

	q, degraded := f.plan()
	q.Limit = p.PageSize

	if p.Cursor != "" {
		id, err := decodeCursor(p.Cursor)
		if err != nil {
			return SalesPage{}, err
		}
		if p.Direction == "prev" {
			q.StartAtID = id
		} else {
			q.StartAfterID = id
		}
	}

	raw, err := e.repo.QuerySales(ctx, q)
	if err != nil {
		if errors.Is(err, store.ErrMissingIndex) {
			e.log.Warn("sales query needs a composite index; filter pushdown should have been degraded",
				zap.String("order_by", string(q.Order())),
				zap.String("status_filter", q.Status))
		}
		return SalesPage{}, fmt.Errorf("fetch sales page: %w", err)
	}

	sales := raw
	if degraded {
		sales = ApplyClientFilters(raw, f)
	}

	page := SalesPage{
		Sales:       sales,
		HasNextPage: len(raw) == p.PageSize,
		HasPrevPage: p.Cursor != "",
	}
	if len(raw) > 0 {
		page.PrevCursor = encodeCursor(raw[0].ID)
		page.NextCursor = encodeCursor(raw[len(raw)-1].ID)
	}
	return page, nil
}

// ApplyClientFilters narrows and re-sorts a raw page in memory: the
// completion half of the degraded-query strategy.
func ApplyClientFilters(sales []domain.Sale, f Filters) []domain.Sale {
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if f.ProductID != "" && sale.ProductID != f.ProductID {
			continue
		}
		if f.VendorID != "" && sale.VendorID != f.VendorID {
			continue
		}
		if f.Status != "" && sale.Status != f.Status {
			continue
		}
		if f.DateFrom != nil && sale.Date.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && sale.Date.After(*f.DateTo) {
			continue
		}
		out = append(out, sale)
	}
	if f.Text != "" {
		out = FilterSalesByText(out, f.Text)
	}
	slices.SortFunc(out, f.sortField().Comparator(f.descending()))
	return out
}

// FilterSalesByText is a case-insensitive substring match over customer
// name and email. The store has no text search, so this always runs
// client-side.
func FilterSalesByText(sales []domain.Sale, searchText string) []domain.Sale {
	text := strings.ToLower(strings.TrimSpace(searchText))
	if text == "" {
		return sales
	}
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if strings.Contains(strings.ToLower(sale.CustomerName), text) ||
			strings.Contains(strings.ToLower(sale.CustomerEmail), text) {
			out = append(out, sale)
		}
	}
	return out
}

func statsKey(dateFrom, dateTo *time.Time) string {
	var sb strings.Builder
	sb.WriteString("sales-stats")
	if dateFrom != nil {
		sb.WriteString(":from=" + domain.DateISO(*dateFrom))
	}
	if dateTo != nil {
		sb.WriteString(":to=" + domain.DateISO(*dateTo))
	}
	return sb.String()
}

// SalesStats computes the pending/approved KPI buckets over the optional
// date range, summing the currency-normalized usdAmount. Errors degrade
// to zeroed stats so a broken aggregate never takes the dashboard down;
// this is the one place errors are swallowed instead of propagated.
func (e *Engine) SalesStats(ctx context.Context, dateFrom, dateTo *time.Time) domain.SalesStats {
	key := statsKey(dateFrom, dateTo)
	if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return *cached
	} else if err != nil {
		e.log.Warn("stats cache read failed", zap.Error(err))
	}

	stats := domain.SalesStats{}

	pending, err := e.FetchSalesPage(ctx,
		Filters{Status: domain.StatusPending, DateFrom: dateFrom, DateTo: dateTo},
		PageRequest{PageSize: statsPageSize})
	if err != nil {
		e.log.Warn("pending stats fetch failed, degrading to zeros", zap.Error(err))
		return domain.SalesStats{}
	}

	approved, err := e.FetchSalesPage(ctx,
		Filters{Status: domain.StatusApproved, DateFrom: dateFrom, DateTo: dateTo},
		PageRequest{PageSize: statsPageSize})
	if err != nil {
		e.log.Warn("approved stats fetch failed, degrading to zeros", zap.Error(err))
		return domain.SalesStats{}
	}

	stats.PendingCount = len(pending.Sales)
	stats.ApprovedCount = len(approved.Sales)
	for _, sale := range pending.Sales {
		stats.PendingAmount += sale.USDAmount
	}
	for _, sale := range approved.Sales {
		stats.ApprovedAmount += sale.USDAmount
	}

	if err := e.cache.Set(ctx, key, &stats, e.statsTTL); err != nil {
		e.log.Warn("stats cache write failed", zap.Error(err))
	}
	return stats
}

// TotalSalesUSD sums usdAmount over every non-rejected sale. Legacy
// documents predating the usdAmount field fall back to the raw amount.
func (e *Engine) TotalSalesUSD(ctx context.Context) (float64, error) {
	raw, err := e.repo.QuerySales(ctx, store.SalesQuery{OrderBy: store.SortDate, Desc: true, Limit: statsPageSize})
	if err != nil {
		return 0, fmt.Errorf("total sales: %w", err)
	}
	var total float64
	for _, sale := range raw {
		if sale.Status == domain.StatusRejected {
			continue
		}
		v := sale.USDAmount
		if v == 0 {
			v = sale.Amount
		}
		total += v
	}
	return total, nil
}

// DashboardSummary assembles the landing-page KPIs. Each metric fails
// independently: an error zeroes its own field and is logged, the rest
// still render.
func (e *Engine) DashboardSummary(ctx context.Context) domain.DashboardSummary {
	var summary domain.DashboardSummary

	if total, err := e.TotalSalesUSD(ctx); err != nil {
		e.log.Warn("dashboard total failed", zap.Error(err))
	} else {
		summary.TotalUSD = total
	}
	if n, err := e.repo.CountClients(ctx); err != nil {
		e.log.Warn("dashboard clients count failed", zap.Error(err))
	} else {
		summary.ClientsCount = n
	}
	if n, err := e.repo.CountActiveProducts(ctx); err != nil {
		e.log.Warn("dashboard products count failed", zap.Error(err))
	} else {
		summary.ActiveProductsCount = n
	}
	if n, err := e.repo.CountActiveSellers(ctx); err != nil {
		e.log.Warn("dashboard sellers count failed", zap.Error(err))
	} else {
		summary.ActiveSellersCount = n
	}
	return summary
}
