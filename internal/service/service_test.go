package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"ventaslink/backend/internal/domain"
	"ventaslink/backend/internal/store"
	"ventaslink/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, zap.NewNop()), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		VendorID: "angela-academiadeia-com",
		Name:     "Angela Ojeda",
		Role:     domain.RoleAdmin,
	})
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		VendorID: "carlos-academiadeia-com",
		Name:     "Carlos Rodriguez",
		Role:     domain.RoleSeller,
	})
}

func validSaleRequest() domain.SaleCreateRequest {
	return domain.SaleCreateRequest{
		ClientID:      "juanc2587-hotmail-com",
		CustomerName:  "Juan Carlos",
		CustomerEmail: "juanc2587@hotmail.com",
		ProductID:     "chatgpt-live-workshop",
		ProductName:   "Taller en vivo Domina ChatGPT",
		VendorID:      "carlos-academiadeia-com",
		VendorName:    "Carlos Rodriguez",
		Amount:        3660.22,
		Currency:      domain.CurrencyMXN,
		USDAmount:     183.01,
		Date:          time.Date(2025, 1, 6, 15, 30, 0, 0, time.UTC),
		PaymentMethod: "transfer",
		Source:        "hotmart",
	}
}

func TestResolveClientCreatesNewFromEmail(t *testing.T) {
	svc, _ := newTestService()

	res, err := svc.ResolveClientForSale(sellerCtx(), domain.ResolveClientRequest{
		Name:  "Juan Carlos",
		Email: "juanc2587@hotmail.com",
		Phone: "+52 555 123",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Client.ID != "juanc2587-hotmail-com" {
		t.Fatalf("expected slug id, got %q", res.Client.ID)
	}
	if !res.Client.Active {
		t.Fatalf("new client must be active")
	}
	if res.DeactivatedClientID != "" {
		t.Fatalf("no client should be deactivated on first resolution")
	}
}

func TestResolveClientReusesActiveRecord(t *testing.T) {
	svc, _ := newTestService()
	ctx := sellerCtx()

	first, err := svc.ResolveClientForSale(ctx, domain.ResolveClientRequest{
		Name:  "Juan Carlos",
		Email: "juanc2587@hotmail.com",
	})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	second, err := svc.ResolveClientForSale(ctx, domain.ResolveClientRequest{
		Name:  "Juan C. (updated)",
		Email: "juanc2587@hotmail.com",
	})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.Client.ID != first.Client.ID {
		t.Fatalf("expected same client, got %q and %q", first.Client.ID, second.Client.ID)
	}
}

func TestResolveClientIdentityChangeDeactivatesOld(t *testing.T) {
	svc, repo := newTestService()
	ctx := sellerCtx()

	first, err := svc.ResolveClientForSale(ctx, domain.ResolveClientRequest{
		Name:  "Juan Carlos",
		Email: "juanc2587@hotmail.com",
	})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	res, err := svc.ResolveClientForSale(ctx, domain.ResolveClientRequest{
		SelectedClientID: first.Client.ID,
		Name:             "Juan Carlos",
		Email:            "juan.nuevo@gmail.com",
	})
	if err != nil {
		t.Fatalf("identity change resolve: %v", err)
	}
	if res.DeactivatedClientID != first.Client.ID {
		t.Fatalf("expected %q deactivated, got %q", first.Client.ID, res.DeactivatedClientID)
	}
	if res.Client.ID != "juan-nuevo-gmail-com" {
		t.Fatalf("expected new slug id, got %q", res.Client.ID)
	}

	old, err := repo.GetClient(ctx, first.Client.ID)
	if err != nil {
		t.Fatalf("old client must still exist: %v", err)
	}
	if old.Active {
		t.Fatalf("old client must be inactive after identity change")
	}
}

func TestResolveClientSelectedSameEmailUpdatesInPlace(t *testing.T) {
	svc, _ := newTestService()
	ctx := sellerCtx()

	first, err := svc.ResolveClientForSale(ctx, domain.ResolveClientRequest{
		Name:  "Juan Carlos",
		Email: "juanc2587@hotmail.com",
	})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	res, err := svc.ResolveClientForSale(ctx, domain.ResolveClientRequest{
		SelectedClientID: first.Client.ID,
		Name:             "Juan Carlos Perez",
		Email:            "JUANC2587@hotmail.com",
		Phone:            "+52 555 999",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.DeactivatedClientID != "" {
		t.Fatalf("matching email must not deactivate anything")
	}
	if res.Client.ID != first.Client.ID {
		t.Fatalf("expected in-place update of %q, got %q", first.Client.ID, res.Client.ID)
	}
	if res.Client.Name != "Juan Carlos Perez" || res.Client.Phone != "+52 555 999" {
		t.Fatalf("expected updated contact fields, got %+v", res.Client)
	}
}

func TestCreateSaleDeterministicID(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.CreateSale(sellerCtx(), validSaleRequest())
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	want := "juanc2587-hotmail-com-2025-01-06-chatgpt-live-workshop"
	if sale.ID != want {
		t.Fatalf("expected id %q, got %q", want, sale.ID)
	}
	if sale.Status != domain.StatusPending {
		t.Fatalf("new sale must be pending, got %q", sale.Status)
	}
	if sale.UpdatedAt != nil {
		t.Fatalf("first submission must not carry updatedAt")
	}
	if sale.Week == 0 {
		t.Fatalf("week must be derived from the sale date")
	}
	if sale.CreatedBy != "carlos-academiadeia-com" {
		t.Fatalf("createdBy must come from the actor, got %q", sale.CreatedBy)
	}
}

func TestCreateSaleResubmissionPreservesCreatedAtAndComments(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.CreateSale(sellerCtx(), validSaleRequest())
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	if _, err := svc.AddSaleComment(adminCtx(), first.ID, "checking the receipt"); err != nil {
		t.Fatalf("add comment: %v", err)
	}

	req := validSaleRequest()
	req.Amount = 3700
	req.USDAmount = 185
	// Same email/date/product key, different time of day.
	req.Date = time.Date(2025, 1, 6, 23, 45, 0, 0, time.UTC)

	second, err := svc.CreateSale(sellerCtx(), req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("resubmission must hit the same id, got %q and %q", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("createdAt must survive resubmission")
	}
	if second.UpdatedAt == nil {
		t.Fatalf("resubmission must stamp updatedAt")
	}
	if len(second.Comments) != 1 {
		t.Fatalf("comment trail must survive resubmission, got %d comments", len(second.Comments))
	}
	if second.USDAmount != 185 {
		t.Fatalf("resubmission must replace payload fields, got %v", second.USDAmount)
	}
}

func TestCreateSaleResubmissionResetsStatusByDefault(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.CreateSale(sellerCtx(), validSaleRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateSaleStatus(adminCtx(), first.ID, domain.StatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	second, err := svc.CreateSale(sellerCtx(), validSaleRequest())
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Status != domain.StatusPending {
		t.Fatalf("default resubmission must re-enter pending, got %q", second.Status)
	}
}

func TestCreateSaleKeepStatusPreservesApproval(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.CreateSale(sellerCtx(), validSaleRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateSaleStatus(adminCtx(), first.ID, domain.StatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	req := validSaleRequest()
	req.KeepStatus = true
	second, err := svc.CreateSale(sellerCtx(), req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Status != domain.StatusApproved {
		t.Fatalf("KeepStatus must preserve approval, got %q", second.Status)
	}
}

func TestCreateSaleValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := sellerCtx()

	mutations := map[string]func(*domain.SaleCreateRequest){
		"missing email":      func(r *domain.SaleCreateRequest) { r.CustomerEmail = "" },
		"missing product":    func(r *domain.SaleCreateRequest) { r.ProductID = "" },
		"zero amount":        func(r *domain.SaleCreateRequest) { r.Amount = 0 },
		"zero usd amount":    func(r *domain.SaleCreateRequest) { r.USDAmount = 0 },
		"bad currency":       func(r *domain.SaleCreateRequest) { r.Currency = "EUR" },
		"zero date":          func(r *domain.SaleCreateRequest) { r.Date = time.Time{} },
		"group without crew": func(r *domain.SaleCreateRequest) { r.Type = domain.SaleTypeGroup },
		"bad evidence url": func(r *domain.SaleCreateRequest) {
			r.EvidenceType = "url"
			r.EvidenceValue = "not-a-url"
		},
	}

	for name, mutate := range mutations {
		req := validSaleRequest()
		mutate(&req)
		if _, err := svc.CreateSale(ctx, req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestCreateSaleGroupWithParticipants(t *testing.T) {
	svc, _ := newTestService()

	req := validSaleRequest()
	req.Type = domain.SaleTypeGroup
	req.Users = []domain.SaleUser{
		{Name: "Juan Carlos", Email: "juanc2587@hotmail.com"},
		{Name: "Maria Lopez", Email: "maria@example.com"},
	}

	sale, err := svc.CreateSale(sellerCtx(), req)
	if err != nil {
		t.Fatalf("group sale: %v", err)
	}
	if sale.Type != domain.SaleTypeGroup || len(sale.Users) != 2 {
		t.Fatalf("expected group sale with 2 participants, got %+v", sale)
	}
}

func TestUpdateSaleStatusRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.CreateSale(sellerCtx(), validSaleRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.UpdateSaleStatus(sellerCtx(), sale.ID, domain.StatusApproved); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for seller, got %v", err)
	}
	if _, err := svc.UpdateSaleStatus(context.Background(), sale.ID, domain.StatusApproved); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden without actor, got %v", err)
	}
}

func TestUpdateSaleStatusTerminalStates(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.CreateSale(sellerCtx(), validSaleRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	approved, err := svc.UpdateSaleStatus(adminCtx(), sale.ID, domain.StatusApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %q", approved.Status)
	}
	if approved.UpdatedAt == nil {
		t.Fatalf("status change must stamp updatedAt")
	}

	if _, err := svc.UpdateSaleStatus(adminCtx(), sale.ID, domain.StatusRejected); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition out of approved, got %v", err)
	}
	if _, err := svc.UpdateSaleStatus(adminCtx(), sale.ID, domain.StatusPending); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for pending target, got %v", err)
	}
}

func TestAddSaleCommentAppendsTrail(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.CreateSale(sellerCtx(), validSaleRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	withOne, err := svc.AddSaleComment(adminCtx(), sale.ID, "first note")
	if err != nil {
		t.Fatalf("first comment: %v", err)
	}
	withTwo, err := svc.AddSaleComment(sellerCtx(), sale.ID, "second note")
	if err != nil {
		t.Fatalf("second comment: %v", err)
	}
	if len(withOne.Comments) != 1 || len(withTwo.Comments) != 2 {
		t.Fatalf("expected growing trail, got %d then %d", len(withOne.Comments), len(withTwo.Comments))
	}
	if withTwo.Comments[1].CreatedByName != "Carlos Rodriguez" {
		t.Fatalf("comment must carry the actor, got %+v", withTwo.Comments[1])
	}

	if _, err := svc.AddSaleComment(adminCtx(), sale.ID, "   "); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank comment, got %v", err)
	}
	if _, err := svc.AddSaleComment(context.Background(), sale.ID, "anon"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden without actor, got %v", err)
	}
}

func TestUpdateSaleStatusWithCommentSingleWrite(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.CreateSale(sellerCtx(), validSaleRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpdateSaleStatusWithComment(adminCtx(), sale.ID, domain.StatusRejected, "no payment evidence")
	if err != nil {
		t.Fatalf("reject with comment: %v", err)
	}
	if updated.Status != domain.StatusRejected {
		t.Fatalf("expected rejected, got %q", updated.Status)
	}
	if len(updated.Comments) != 1 || updated.Comments[0].Message != "no payment evidence" {
		t.Fatalf("expected the rejection comment, got %+v", updated.Comments)
	}
}

func TestCreateSaleUpdatesClientLastPurchase(t *testing.T) {
	svc, repo := newTestService()
	ctx := sellerCtx()

	res, err := svc.ResolveClientForSale(ctx, domain.ResolveClientRequest{
		Name:  "Juan Carlos",
		Email: "juanc2587@hotmail.com",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	req := validSaleRequest()
	req.ClientID = res.Client.ID
	if _, err := svc.CreateSale(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}

	client, err := repo.GetClient(ctx, res.Client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if client.LastPurchaseAt == nil || !client.LastPurchaseAt.Equal(req.Date.UTC()) {
		t.Fatalf("expected lastPurchaseAt %v, got %v", req.Date.UTC(), client.LastPurchaseAt)
	}
}

func TestProductCRUDRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	product := domain.Product{Name: "Curso Nuevo", SKU: "new-course", BaseCurrency: domain.CurrencyUSD, BasePrice: 99}

	if _, err := svc.CreateProduct(sellerCtx(), product); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for seller, got %v", err)
	}

	created, err := svc.CreateProduct(adminCtx(), product)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if !created.Active || created.ID != "new-course" {
		t.Fatalf("created product must be active with id from sku, got %+v", created)
	}
}

func TestCreateReferenceData(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.CreateSource(sellerCtx(), "TikTok"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for seller, got %v", err)
	}

	source, err := svc.CreateSource(adminCtx(), "TikTok")
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	if source.ID == "" || source.Name != "TikTok" {
		t.Fatalf("unexpected source %+v", source)
	}

	if _, err := svc.CreatePaymentMethod(adminCtx(), "  "); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank name, got %v", err)
	}
}
