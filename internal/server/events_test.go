package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fidelio/internal/clock"
	loyaltydomain "github.com/smallbiznis/fidelio/internal/loyalty/domain"
	membershipdomain "github.com/smallbiznis/fidelio/internal/membership/domain"
	pointsdomain "github.com/smallbiznis/fidelio/internal/points/domain"
	reversaldomain "github.com/smallbiznis/fidelio/internal/reversal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoyaltyService struct {
	placed    int
	lastTotal int64
	lastDate  time.Time
	applyErr  error
}

func (f *fakeLoyaltyService) OnOrderPlaced(ctx context.Context, customerID, orderID string, orderTotal int64, orderDate time.Time) (loyaltydomain.OrderPlacedResult, error) {
	f.placed++
	f.lastTotal = orderTotal
	f.lastDate = orderDate
	return loyaltydomain.OrderPlacedResult{CustomerID: customerID, PointsEarned: 500}, nil
}

func (f *fakeLoyaltyService) OnOrderCancelled(ctx context.Context, orderID string) (reversaldomain.Result, error) {
	if orderID == "missing" {
		return reversaldomain.Result{}, reversaldomain.ErrUnknownOrder
	}
	return reversaldomain.Result{CustomerID: "cust_1", Points: -500}, nil
}

func (f *fakeLoyaltyService) OnReturnCompleted(ctx context.Context, returnID, orderID string, refundedAmount int64) (reversaldomain.Result, error) {
	return reversaldomain.Result{CustomerID: "cust_1", Points: -200}, nil
}

func (f *fakeLoyaltyService) OnReturnReversed(ctx context.Context, returnID string) (reversaldomain.Result, error) {
	return reversaldomain.Result{CustomerID: "cust_1", Points: 200}, nil
}

func (f *fakeLoyaltyService) ApplyPointsToOrder(ctx context.Context, customerID, orderID string, points, subtotal int64) (loyaltydomain.RedemptionResult, error) {
	if f.applyErr != nil {
		return loyaltydomain.RedemptionResult{}, f.applyErr
	}
	return loyaltydomain.RedemptionResult{Discount: points}, nil
}

func (f *fakeLoyaltyService) CalculateRedemption(ctx context.Context, points int64) (int64, error) {
	if points <= 0 {
		return 0, loyaltydomain.ErrInvalidPoints
	}
	return points, nil
}

func newTestServer(t *testing.T, svc loyaltydomain.Service) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:     router,
		clk:        clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		loyaltySvc: svc,
	}
	srv.registerEventRoutes()
	srv.registerRedemptionRoutes()

	return srv, router
}

func postJSON(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestOrderPlacedHandler(t *testing.T) {
	svc := &fakeLoyaltyService{}
	_, router := newTestServer(t, svc)

	resp := postJSON(t, router, "/v1/events/order-placed",
		`{"customer_id":"cust_1","order_id":"order_1","order_total":10000,"order_date":"2024-05-01T10:00:00Z"}`)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, svc.placed)
	assert.Equal(t, int64(10000), svc.lastTotal)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), svc.lastDate)

	var body struct {
		Data loyaltydomain.OrderPlacedResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, int64(500), body.Data.PointsEarned)
}

func TestOrderPlacedDefaultsOrderDate(t *testing.T) {
	svc := &fakeLoyaltyService{}
	_, router := newTestServer(t, svc)

	resp := postJSON(t, router, "/v1/events/order-placed",
		`{"customer_id":"cust_1","order_id":"order_1","order_total":10000}`)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), svc.lastDate)
}

func TestOrderPlacedRejectsBadDate(t *testing.T) {
	svc := &fakeLoyaltyService{}
	_, router := newTestServer(t, svc)

	resp := postJSON(t, router, "/v1/events/order-placed",
		`{"customer_id":"cust_1","order_id":"order_1","order_total":10000,"order_date":"yesterday"}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, 0, svc.placed)
}

func TestOrderCancelledUnknownOrderIs404(t *testing.T) {
	_, router := newTestServer(t, &fakeLoyaltyService{})

	resp := postJSON(t, router, "/v1/events/order-cancelled", `{"order_id":"missing"}`)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestApplyRedemptionErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"insufficient balance", pointsdomain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{"not a member", loyaltydomain.ErrNotAMember, http.StatusUnprocessableEntity},
		{"discount exceeds subtotal", loyaltydomain.ErrDiscountExceedsSubtotal, http.StatusUnprocessableEntity},
		{"invalid points", loyaltydomain.ErrInvalidPoints, http.StatusBadRequest},
		{"not enrolled", membershipdomain.ErrNotEnrolled, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, router := newTestServer(t, &fakeLoyaltyService{applyErr: tc.err})

			resp := postJSON(t, router, "/v1/redemptions/apply",
				`{"customer_id":"cust_1","order_id":"order_1","points":100,"subtotal":5000}`)

			assert.Equal(t, tc.status, resp.Code)
		})
	}
}

func TestCalculateRedemptionHandler(t *testing.T) {
	_, router := newTestServer(t, &fakeLoyaltyService{})

	resp := postJSON(t, router, "/v1/redemptions/calculate", `{"points":500}`)

	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Data struct {
			Points   int64 `json:"points"`
			Discount int64 `json:"discount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, int64(500), body.Data.Discount)
}
