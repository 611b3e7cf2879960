package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ventaslink/backend/internal/domain"
	"ventaslink/backend/internal/store"
)

// Collection names, fixed by the data contract.
const (
	colClients        = "clients"
	colSales          = "sales"
	colProducts       = "products"
	colVendors        = "vendors"
	colSources        = "sources"
	colPaymentMethods = "payment_methods"
	colEvidenceTypes  = "evidence_types"
)

// Store keeps every collection in one JSONB documents table. Documents
// are whole-row replaced on Put (last write wins) and merged on patch;
// the comment append runs inside a single UPDATE so concurrent appends
// serialize on the row instead of clobbering each other.
//
// Only single-field expression indexes are maintained, matching the
// store contract: a query combining an equality filter with an order on
// another field is rejected with ErrMissingIndex instead of being
// answered by a sequential scan.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			doc JSONB NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS documents_sales_date_idx
			ON documents ((doc->>'date')) WHERE collection = 'sales'`,
		`CREATE INDEX IF NOT EXISTS documents_sales_status_idx
			ON documents ((doc->>'status')) WHERE collection = 'sales'`,
		`CREATE INDEX IF NOT EXISTS documents_email_idx
			ON documents ((lower(doc->>'email')))`,
		`CREATE INDEX IF NOT EXISTS documents_active_idx
			ON documents (collection, ((doc->>'active')::boolean))`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) getDoc(ctx context.Context, collection string, id string, dest any) error {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return json.Unmarshal(raw, dest)
}

func (s *Store) putDoc(ctx context.Context, collection string, id string, value any) error {
	if id == "" {
		return store.ErrInvalidInput
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc`,
		collection, id, raw)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

// patchDoc merges the patch object into the stored document at the top
// level. Only fields present in the patch are touched.
func (s *Store) patchDoc(ctx context.Context, collection string, id string, patch any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal patch %s/%s: %w", collection, id, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET doc = doc || $3 WHERE collection = $1 AND id = $2`,
		collection, id, raw)
	if err != nil {
		return fmt.Errorf("patch %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) listDocs(ctx context.Context, query string, args ...any) ([][]byte, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		docs = append(docs, raw)
	}
	return docs, rows.Err()
}

func unmarshalAll[T any](docs [][]byte) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, raw := range docs {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Clients.

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	var client domain.Client
	if err := s.getDoc(ctx, colClients, id, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *Store) GetClientByEmail(ctx context.Context, email string) (*domain.Client, error) {
	docs, err := s.listDocs(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND lower(doc->>'email') = lower($2)`,
		colClients, email)
	if err != nil {
		return nil, fmt.Errorf("client by email: %w", err)
	}
	clients, err := unmarshalAll[domain.Client](docs)
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, store.ErrNotFound
	}
	best := clients[0]
	for _, c := range clients[1:] {
		if c.Active && !best.Active {
			best = c
			continue
		}
		if c.Active == best.Active && c.CreatedAt.After(best.CreatedAt) {
			best = c
		}
	}
	return &best, nil
}

func (s *Store) PutClient(ctx context.Context, client domain.Client) error {
	return s.putDoc(ctx, colClients, client.ID, client)
}

func (s *Store) UpdateClientFields(ctx context.Context, id string, patch domain.ClientPatch) error {
	return s.patchDoc(ctx, colClients, id, patch)
}

func (s *Store) ListClients(ctx context.Context, activeOnly bool) ([]domain.Client, error) {
	query := `SELECT doc FROM documents WHERE collection = $1`
	if activeOnly {
		query += ` AND (doc->>'active')::boolean`
	}
	query += ` ORDER BY lower(doc->>'name')`
	docs, err := s.listDocs(ctx, query, colClients)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return unmarshalAll[domain.Client](docs)
}

func (s *Store) CountClients(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM documents WHERE collection = $1`, colClients)
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Sales.

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	if err := s.getDoc(ctx, colSales, id, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) PutSale(ctx context.Context, sale domain.Sale) error {
	return s.putDoc(ctx, colSales, sale.ID, sale)
}

func (s *Store) UpdateSaleStatus(ctx context.Context, id string, status string, updatedAt time.Time) (*domain.Sale, error) {
	patch := map[string]any{"status": status, "updatedAt": updatedAt.UTC()}
	if err := s.patchDoc(ctx, colSales, id, patch); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, id)
}

func (s *Store) AppendSaleComment(ctx context.Context, id string, comment domain.SaleComment) (*domain.Sale, error) {
	raw, err := json.Marshal(comment)
	if err != nil {
		return nil, fmt.Errorf("marshal comment: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents
		 SET doc = jsonb_set(doc, '{comments}',
		     coalesce(doc->'comments', '[]'::jsonb) || $3::jsonb)
		 WHERE collection = $1 AND id = $2`,
		colSales, id, raw)
	if err != nil {
		return nil, fmt.Errorf("append comment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSale(ctx, id)
}

func (s *Store) UpdateSaleStatusWithComment(ctx context.Context, id string, status string, comment domain.SaleComment, updatedAt time.Time) (*domain.Sale, error) {
	commentRaw, err := json.Marshal(comment)
	if err != nil {
		return nil, fmt.Errorf("marshal comment: %w", err)
	}
	patchRaw, err := json.Marshal(map[string]any{"status": status, "updatedAt": updatedAt.UTC()})
	if err != nil {
		return nil, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents
		 SET doc = jsonb_set(doc || $4::jsonb, '{comments}',
		     coalesce(doc->'comments', '[]'::jsonb) || $3::jsonb)
		 WHERE collection = $1 AND id = $2`,
		colSales, id, commentRaw, patchRaw)
	if err != nil {
		return nil, fmt.Errorf("status with comment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSale(ctx, id)
}

// orderExpr maps a sort field to the SQL expression used for ordering and
// cursor comparison. The date field stores RFC3339 UTC strings, so its
// lexicographic order is chronological; usdAmount needs a numeric cast.
func orderExpr(field store.SortField) string {
	switch field {
	case store.SortUSDAmount:
		return `(doc->>'usdAmount')::numeric`
	case store.SortDate:
		return `doc->>'date'`
	default:
		return fmt.Sprintf(`lower(doc->>'%s')`, string(field))
	}
}

func (s *Store) QuerySales(ctx context.Context, q store.SalesQuery) ([]domain.Sale, error) {
	if q.NeedsCompositeIndex() {
		return nil, store.ErrMissingIndex
	}
	order := q.Order()
	if !order.Valid() {
		return nil, store.ErrInvalidInput
	}

	expr := orderExpr(order)
	dir := "ASC"
	cmp := ">"
	if q.Desc {
		dir = "DESC"
		cmp = "<"
	}

	var sb strings.Builder
	args := []any{colSales}
	sb.WriteString(`SELECT doc FROM documents WHERE collection = $1`)

	if q.Status != "" {
		args = append(args, q.Status)
		fmt.Fprintf(&sb, ` AND doc->>'status' = $%d`, len(args))
	}

	anchorID := q.StartAfterID
	inclusive := false
	if anchorID == "" && q.StartAtID != "" {
		anchorID = q.StartAtID
		inclusive = true
	}
	if anchorID != "" {
		// The cursor anchors on a previously returned document; resolve its
		// sort key in the same statement.
		if _, err := s.GetSale(ctx, anchorID); err != nil {
			return nil, err
		}
		if inclusive {
			cmp += "="
		}
		args = append(args, anchorID)
		fmt.Fprintf(&sb,
			` AND (%s, id) %s ((SELECT %s FROM documents WHERE collection = $1 AND id = $%d), $%d)`,
			expr, cmp, expr, len(args), len(args))
	}

	fmt.Fprintf(&sb, ` ORDER BY %s %s, id %s`, expr, dir, dir)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	docs, err := s.listDocs(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	return unmarshalAll[domain.Sale](docs)
}

// Products.

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if err := s.getDoc(ctx, colProducts, id, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) PutProduct(ctx context.Context, product domain.Product) error {
	return s.putDoc(ctx, colProducts, product.ID, product)
}

func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	query := `SELECT doc FROM documents WHERE collection = $1`
	if activeOnly {
		query += ` AND (doc->>'active')::boolean`
	}
	query += ` ORDER BY lower(doc->>'name')`
	docs, err := s.listDocs(ctx, query, colProducts)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return unmarshalAll[domain.Product](docs)
}

func (s *Store) CountActiveProducts(ctx context.Context) (int, error) {
	return s.count(ctx,
		`SELECT count(*) FROM documents WHERE collection = $1 AND (doc->>'active')::boolean`,
		colProducts)
}

// Vendors.

func (s *Store) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	var vendor domain.Vendor
	if err := s.getDoc(ctx, colVendors, id, &vendor); err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (s *Store) GetVendorByEmail(ctx context.Context, email string) (*domain.Vendor, error) {
	docs, err := s.listDocs(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND lower(doc->>'email') = lower($2) LIMIT 1`,
		colVendors, email)
	if err != nil {
		return nil, fmt.Errorf("vendor by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, store.ErrNotFound
	}
	var vendor domain.Vendor
	if err := json.Unmarshal(docs[0], &vendor); err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (s *Store) PutVendor(ctx context.Context, vendor domain.Vendor) error {
	return s.putDoc(ctx, colVendors, vendor.ID, vendor)
}

func (s *Store) UpdateVendorPassword(ctx context.Context, id string, passwordHash string) error {
	return s.patchDoc(ctx, colVendors, id, map[string]string{"passwordHash": passwordHash})
}

func (s *Store) ListVendors(ctx context.Context, activeOnly bool) ([]domain.Vendor, error) {
	query := `SELECT doc FROM documents WHERE collection = $1`
	if activeOnly {
		query += ` AND (doc->>'active')::boolean`
	}
	query += ` ORDER BY lower(doc->>'name')`
	docs, err := s.listDocs(ctx, query, colVendors)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	return unmarshalAll[domain.Vendor](docs)
}

func (s *Store) CountActiveSellers(ctx context.Context) (int, error) {
	return s.count(ctx,
		`SELECT count(*) FROM documents
		 WHERE collection = $1 AND (doc->>'active')::boolean AND doc->>'role' = $2`,
		colVendors, domain.RoleSeller)
}

// Reference data.

func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	docs, err := s.listDocs(ctx,
		`SELECT doc FROM documents WHERE collection = $1 ORDER BY doc->>'name'`, colSources)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return unmarshalAll[domain.Source](docs)
}

func (s *Store) PutSource(ctx context.Context, source domain.Source) error {
	return s.putDoc(ctx, colSources, source.ID, source)
}

func (s *Store) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	docs, err := s.listDocs(ctx,
		`SELECT doc FROM documents WHERE collection = $1 ORDER BY doc->>'name'`, colPaymentMethods)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return unmarshalAll[domain.PaymentMethod](docs)
}

func (s *Store) PutPaymentMethod(ctx context.Context, method domain.PaymentMethod) error {
	return s.putDoc(ctx, colPaymentMethods, method.ID, method)
}

func (s *Store) ListEvidenceTypes(ctx context.Context) ([]domain.EvidenceType, error) {
	docs, err := s.listDocs(ctx,
		`SELECT doc FROM documents WHERE collection = $1 ORDER BY doc->>'name'`, colEvidenceTypes)
	if err != nil {
		return nil, fmt.Errorf("list evidence types: %w", err)
	}
	return unmarshalAll[domain.EvidenceType](docs)
}

func (s *Store) PutEvidenceType(ctx context.Context, evidenceType domain.EvidenceType) error {
	return s.putDoc(ctx, colEvidenceTypes, evidenceType.ID, evidenceType)
}
