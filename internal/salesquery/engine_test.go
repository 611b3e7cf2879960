package salesquery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ventaslink/backend/internal/domain"
	"ventaslink/backend/internal/store"
	"ventaslink/backend/internal/store/memory"
)

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func seedSale(t *testing.T, repo *memory.Store, id, name, email, status string, date time.Time, usd float64) domain.Sale {
	t.Helper()
	sale := domain.Sale{
		ID:            id,
		Type:          domain.SaleTypeIndividual,
		CustomerName:  name,
		CustomerEmail: email,
		ProductID:     "chatgpt-live-workshop",
		ProductName:   "Taller en vivo Domina ChatGPT",
		VendorID:      "carlos-academiadeia-com",
		VendorName:    "Carlos Rodriguez",
		Amount:        usd,
		Currency:      domain.CurrencyUSD,
		USDAmount:     usd,
		Date:          date,
		Status:        status,
		CreatedAt:     date,
	}
	require.NoError(t, repo.PutSale(context.Background(), sale))
	return sale
}

func TestPlanPushdown(t *testing.T) {
	// Unfiltered listings push the requested sort straight down.
	q, degraded := Filters{SortBy: store.SortCustomerName, SortDir: SortAsc}.plan()
	require.False(t, degraded)
	require.Equal(t, store.SortCustomerName, q.Order())
	require.False(t, q.Desc)
	require.Empty(t, q.Status)

	// Status filter + status sort fits one single-field index.
	q, degraded = Filters{Status: domain.StatusPending, SortBy: store.SortStatus}.plan()
	require.False(t, degraded)
	require.Equal(t, domain.StatusPending, q.Status)
	require.Equal(t, store.SortStatus, q.Order())

	// Any other combination degrades to the safe raw scan.
	q, degraded = Filters{Status: domain.StatusPending, SortBy: store.SortCustomerName}.plan()
	require.True(t, degraded)
	require.Empty(t, q.Status)
	require.Equal(t, store.SortDate, q.Order())
	require.True(t, q.Desc)
}

func TestFetchSalesPageDefaultOrderIsDateDesc(t *testing.T) {
	repo := memory.New()
	seedSale(t, repo, "s1", "Ana", "ana@x.com", domain.StatusPending, day(1), 100)
	seedSale(t, repo, "s2", "Bea", "bea@x.com", domain.StatusPending, day(3), 100)
	seedSale(t, repo, "s3", "Cara", "cara@x.com", domain.StatusPending, day(2), 100)

	engine := NewEngine(repo, nil, 0, nil)
	page, err := engine.FetchSalesPage(context.Background(), Filters{}, PageRequest{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Sales, 3)
	require.Equal(t, []string{"s2", "s3", "s1"}, []string{page.Sales[0].ID, page.Sales[1].ID, page.Sales[2].ID})
	require.False(t, page.HasNextPage)
	require.False(t, page.HasPrevPage)
}

func TestFetchSalesPageDegradedFilterResortsInMemory(t *testing.T) {
	repo := memory.New()
	seedSale(t, repo, "s1", "Zoe", "zoe@x.com", domain.StatusApproved, day(1), 100)
	seedSale(t, repo, "s2", "Ana", "ana@x.com", domain.StatusApproved, day(3), 100)
	seedSale(t, repo, "s3", "Mia", "mia@x.com", domain.StatusPending, day(2), 100)

	engine := NewEngine(repo, nil, 0, nil)
	page, err := engine.FetchSalesPage(context.Background(),
		Filters{Status: domain.StatusApproved, SortBy: store.SortCustomerName, SortDir: SortAsc},
		PageRequest{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Sales, 2)
	require.Equal(t, "Ana", page.Sales[0].CustomerName)
	require.Equal(t, "Zoe", page.Sales[1].CustomerName)
}

func TestFetchSalesPageTextSearch(t *testing.T) {
	repo := memory.New()
	seedSale(t, repo, "s1", "Juan Carlos", "juanc2587@hotmail.com", domain.StatusPending, day(1), 100)
	seedSale(t, repo, "s2", "Maria Lopez", "maria@gmail.com", domain.StatusPending, day(2), 100)

	engine := NewEngine(repo, nil, 0, nil)
	page, err := engine.FetchSalesPage(context.Background(), Filters{Text: "HOTMAIL"}, PageRequest{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Sales, 1)
	require.Equal(t, "s1", page.Sales[0].ID)
}

func TestFetchSalesPageCursorWalk(t *testing.T) {
	repo := memory.New()
	for i := 1; i <= 5; i++ {
		seedSale(t, repo, fmt.Sprintf("s%d", i), "Ana", "ana@x.com", domain.StatusPending, day(i), 100)
	}

	engine := NewEngine(repo, nil, 0, nil)
	ctx := context.Background()

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := engine.FetchSalesPage(ctx, Filters{}, PageRequest{PageSize: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, sale := range page.Sales {
			require.False(t, seen[sale.ID], "sale %s returned twice", sale.ID)
			seen[sale.ID] = true
		}
		pages++
		if !page.HasNextPage {
			break
		}
		cursor = page.NextCursor
	}
	require.Equal(t, 3, pages)
	require.Len(t, seen, 5)
}

func TestFetchSalesPagePrevAnchorsAtCursor(t *testing.T) {
	repo := memory.New()
	for i := 1; i <= 4; i++ {
		seedSale(t, repo, fmt.Sprintf("s%d", i), "Ana", "ana@x.com", domain.StatusPending, day(i), 100)
	}

	engine := NewEngine(repo, nil, 0, nil)
	ctx := context.Background()

	first, err := engine.FetchSalesPage(ctx, Filters{}, PageRequest{PageSize: 2})
	require.NoError(t, err)
	second, err := engine.FetchSalesPage(ctx, Filters{}, PageRequest{PageSize: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.True(t, second.HasPrevPage)

	// "prev" re-anchors inclusively at the stored boundary document.
	back, err := engine.FetchSalesPage(ctx, Filters{}, PageRequest{PageSize: 2, Cursor: second.PrevCursor, Direction: "prev"})
	require.NoError(t, err)
	require.Equal(t, second.Sales[0].ID, back.Sales[0].ID)
}

func TestFetchSalesPageLossyHasNextPage(t *testing.T) {
	repo := memory.New()
	// Raw order is date desc: s4, s3, s2, s1. Only s1 is approved, so the
	// first filtered page is empty while the raw page is full.
	seedSale(t, repo, "s1", "Ana", "ana@x.com", domain.StatusApproved, day(1), 100)
	seedSale(t, repo, "s2", "Bea", "bea@x.com", domain.StatusPending, day(2), 100)
	seedSale(t, repo, "s3", "Cara", "cara@x.com", domain.StatusPending, day(3), 100)
	seedSale(t, repo, "s4", "Dee", "dee@x.com", domain.StatusPending, day(4), 100)

	engine := NewEngine(repo, nil, 0, nil)
	page, err := engine.FetchSalesPage(context.Background(),
		Filters{Status: domain.StatusApproved}, PageRequest{PageSize: 2})
	require.NoError(t, err)
	require.Empty(t, page.Sales)
	require.True(t, page.HasNextPage)
	require.NotEmpty(t, page.NextCursor)
}

func TestFetchSalesPageRejectsBadInput(t *testing.T) {
	engine := NewEngine(memory.New(), nil, 0, nil)
	ctx := context.Background()

	_, err := engine.FetchSalesPage(ctx, Filters{}, PageRequest{PageSize: 0})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = engine.FetchSalesPage(ctx, Filters{}, PageRequest{PageSize: 10, Cursor: "%%%not-base64%%%"})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = engine.FetchSalesPage(ctx, Filters{}, PageRequest{PageSize: 10, Cursor: encodeCursor("gone")})
	require.ErrorIs(t, err, store.ErrNotFound)
}

type fakeStatsCache struct {
	values map[string]*domain.SalesStats
	sets   int
}

func (c *fakeStatsCache) Get(_ context.Context, key string) (*domain.SalesStats, bool, error) {
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *fakeStatsCache) Set(_ context.Context, key string, value *domain.SalesStats, _ time.Duration) error {
	c.values[key] = value
	c.sets++
	return nil
}

func TestSalesStatsBuckets(t *testing.T) {
	repo := memory.New()
	seedSale(t, repo, "s1", "Ana", "ana@x.com", domain.StatusPending, day(1), 183.01)
	seedSale(t, repo, "s2", "Bea", "bea@x.com", domain.StatusPending, day(2), 100)
	seedSale(t, repo, "s3", "Cara", "cara@x.com", domain.StatusApproved, day(3), 299)
	seedSale(t, repo, "s4", "Dee", "dee@x.com", domain.StatusRejected, day(4), 500)

	engine := NewEngine(repo, nil, 0, nil)
	stats := engine.SalesStats(context.Background(), nil, nil)
	require.Equal(t, 2, stats.PendingCount)
	require.Equal(t, 1, stats.ApprovedCount)
	require.InDelta(t, 283.01, stats.PendingAmount, 0.001)
	require.InDelta(t, 299, stats.ApprovedAmount, 0.001)
}

func TestSalesStatsDateRange(t *testing.T) {
	repo := memory.New()
	seedSale(t, repo, "s1", "Ana", "ana@x.com", domain.StatusApproved, day(1), 100)
	seedSale(t, repo, "s2", "Bea", "bea@x.com", domain.StatusApproved, day(10), 200)
	seedSale(t, repo, "s3", "Cara", "cara@x.com", domain.StatusApproved, day(20), 400)

	from, to := day(5), day(15)
	engine := NewEngine(repo, nil, 0, nil)
	stats := engine.SalesStats(context.Background(), &from, &to)
	require.Equal(t, 1, stats.ApprovedCount)
	require.InDelta(t, 200, stats.ApprovedAmount, 0.001)
}

func TestSalesStatsUsesCache(t *testing.T) {
	repo := memory.New()
	seedSale(t, repo, "s1", "Ana", "ana@x.com", domain.StatusApproved, day(1), 100)

	fc := &fakeStatsCache{values: map[string]*domain.SalesStats{}}
	engine := NewEngine(repo, fc, time.Minute, nil)
	ctx := context.Background()

	first := engine.SalesStats(ctx, nil, nil)
	require.Equal(t, 1, fc.sets)

	// New data is invisible until the TTL expires.
	seedSale(t, repo, "s2", "Bea", "bea@x.com", domain.StatusApproved, day(2), 200)
	second := engine.SalesStats(ctx, nil, nil)
	require.Equal(t, first, second)
	require.Equal(t, 1, fc.sets)
}

func TestTotalSalesUSDSkipsRejectedAndFallsBack(t *testing.T) {
	repo := memory.New()
	seedSale(t, repo, "s1", "Ana", "ana@x.com", domain.StatusApproved, day(1), 100)
	seedSale(t, repo, "s2", "Bea", "bea@x.com", domain.StatusRejected, day(2), 999)
	legacy := seedSale(t, repo, "s3", "Cara", "cara@x.com", domain.StatusPending, day(3), 0)
	legacy.Amount = 50
	legacy.USDAmount = 0
	require.NoError(t, repo.PutSale(context.Background(), legacy))

	engine := NewEngine(repo, nil, 0, nil)
	total, err := engine.TotalSalesUSD(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 150, total, 0.001)
}

func TestDashboardSummaryCounts(t *testing.T) {
	repo := memory.NewSeeded()
	seedSale(t, repo, "s1", "Ana", "ana@x.com", domain.StatusApproved, day(1), 100)

	engine := NewEngine(repo, nil, 0, nil)
	summary := engine.DashboardSummary(context.Background())
	require.InDelta(t, 100, summary.TotalUSD, 0.001)
	require.Equal(t, 7, summary.ActiveProductsCount)
	require.Equal(t, 2, summary.ActiveSellersCount)
	require.Equal(t, 0, summary.ClientsCount)
}

func TestExportRowsFollowListingOrder(t *testing.T) {
	repo := memory.New()
	seedSale(t, repo, "s1", "Ana", "ana@x.com", domain.StatusApproved, day(1), 183.01)
	seedSale(t, repo, "s2", "Bea", "bea@x.com", domain.StatusPending, day(2), 100)

	engine := NewEngine(repo, nil, 0, nil)
	rows, err := engine.FetchAllSalesForExport(context.Background(), Filters{}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Bea", rows[0].CustomerName)
	require.Equal(t, "2025-03-01", rows[1].SaleDateISO)
}

func TestExportRespectsRowCap(t *testing.T) {
	repo := memory.New()
	for i := 1; i <= 8; i++ {
		seedSale(t, repo, fmt.Sprintf("s%d", i), "Ana", "ana@x.com", domain.StatusPending, day(i), 100)
	}

	engine := NewEngine(repo, nil, 0, nil)
	rows, err := engine.FetchAllSalesForExport(context.Background(), Filters{}, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestWriteCSVHeaderAndRows(t *testing.T) {
	rows := []SaleRow{
		{
			CustomerName:  "Juan Carlos",
			CustomerEmail: "juanc2587@hotmail.com",
			ProductName:   "Taller en vivo Domina ChatGPT",
			VendorName:    "Carlos Rodriguez",
			SaleDateISO:   "2025-01-06",
			PaymentMethod: "transfer",
			AmountUSD:     183.01,
			Status:        domain.StatusPending,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, strings.Join(ExportHeaders, ","), lines[0])
	require.Equal(t, "Juan Carlos,juanc2587@hotmail.com,Taller en vivo Domina ChatGPT,Carlos Rodriguez,2025-01-06,transfer,183.01,pending", lines[1])
}

func TestApplyClientFiltersDateBounds(t *testing.T) {
	sales := []domain.Sale{
		{ID: "s1", Date: day(1)},
		{ID: "s2", Date: day(10)},
		{ID: "s3", Date: day(20)},
	}
	from, to := day(5), day(15)
	out := ApplyClientFilters(sales, Filters{DateFrom: &from, DateTo: &to})
	require.Len(t, out, 1)
	require.Equal(t, "s2", out[0].ID)
}

func TestQueryRequiringCompositeIndexIsRejectedByStore(t *testing.T) {
	repo := memory.New()
	_, err := repo.QuerySales(context.Background(), store.SalesQuery{
		Status:  domain.StatusPending,
		OrderBy: store.SortCustomerName,
	})
	require.ErrorIs(t, err, store.ErrMissingIndex)
	require.False(t, errors.Is(err, store.ErrNotFound))
}
