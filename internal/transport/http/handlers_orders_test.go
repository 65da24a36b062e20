package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assurly/internal/order"
	"assurly/internal/sequence"
	id "assurly/pkg/domain"
	"assurly/pkg/platform/tx"
	"assurly/pkg/requestcontext"
	"assurly/pkg/testutil"
)

// Handler tests bypass the auth middleware and stamp identity straight onto
// the request context, so they exercise decode/encode and the status mapping
// without a token round trip.

var handlerTestDay = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newOrderRouter(t *testing.T) (chi.Router, *order.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := order.NewService(order.NewInMemoryStore(),
		sequence.New(sequence.NewInMemoryStore(), 3),
		tx.NewMemoryRunner(time.Second),
		order.WithLogger(logger))
	r := chi.NewRouter()
	(&orderHandler{service: svc, logger: logger}).register(r)
	return r, svc
}

func seedOrder(t *testing.T, svc *order.Service, tenantID id.TenantID) *order.Order {
	t.Helper()
	ctx := requestcontext.WithTime(context.Background(), handlerTestDay)
	o, err := svc.Create(ctx, tenantID, order.CreateInput{
		CustomerID:       id.NewCustomerID(),
		ProductID:        id.NewProductID(),
		CoverageAmount:   decimal.NewFromInt(1000000),
		PremiumAmount:    decimal.NewFromInt(40000),
		PremiumFrequency: id.FrequencyMonthly,
		PaymentMethod:    "card",
	})
	require.NoError(t, err)
	return o
}

func TestOrderHandler_Get(t *testing.T) {
	router, svc := newOrderRouter(t)
	tenantID := id.NewTenantID()
	o := seedOrder(t, svc, tenantID)

	req := testutil.NewRequest(t, http.MethodGet, "/orders/"+o.ID.String())
	req = testutil.WithTenant(req, tenantID)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[orderResponse](t, rr)
	assert.Equal(t, o.OrderNumber, resp.OrderNumber)
	assert.Equal(t, "draft", resp.Status)
	assert.Len(t, resp.History, 1)
}

func TestOrderHandler_GetScopesByTenant(t *testing.T) {
	router, svc := newOrderRouter(t)
	o := seedOrder(t, svc, id.NewTenantID())

	req := testutil.NewRequest(t, http.MethodGet, "/orders/"+o.ID.String())
	req = testutil.WithTenant(req, id.NewTenantID())
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestOrderHandler_UpdateStatus(t *testing.T) {
	router, svc := newOrderRouter(t)
	tenantID := id.NewTenantID()
	o := seedOrder(t, svc, tenantID)

	testutil.When(t, "the draft is submitted", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+o.ID.String()+"/status",
			map[string]string{"status": "submitted"})
		req = testutil.WithTenant(req, tenantID)
		req = testutil.WithActor(req, "reviewer-1")
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[orderResponse](t, rr)
		assert.Equal(t, "submitted", resp.Status)
		assert.Equal(t, "reviewer-1", resp.History[len(resp.History)-1].Actor)
	})

	testutil.Then(t, "skipping review is rejected", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+o.ID.String()+"/status",
			map[string]string{"status": "approved"})
		req = testutil.WithTenant(req, tenantID)
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, "invalid_transition")
	})
}

func TestOrderHandler_RejectsMalformedBody(t *testing.T) {
	router, svc := newOrderRouter(t)
	tenantID := id.NewTenantID()
	o := seedOrder(t, svc, tenantID)

	req := testutil.NewRequestWithBody(t, http.MethodPost,
		"/orders/"+o.ID.String()+"/status", "{not json")
	req = testutil.WithTenant(req, tenantID)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}

func TestOrderHandler_Attention(t *testing.T) {
	router, svc := newOrderRouter(t)
	tenantID := id.NewTenantID()
	o := seedOrder(t, svc, tenantID)

	ctx := requestcontext.WithTime(context.Background(), handlerTestDay)
	_, err := svc.UpdateStatus(ctx, tenantID, o.ID, order.StatusSubmitted, "")
	require.NoError(t, err)

	req := testutil.NewRequest(t, http.MethodGet, "/orders/"+o.ID.String()+"/attention")
	req = testutil.WithTenant(req, tenantID)
	req = testutil.WithRequestTime(req, handlerTestDay)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "needs_attention", true)
}
