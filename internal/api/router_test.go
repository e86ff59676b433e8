package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/watercoop/waterbill/internal/api/cron"
	v1 "github.com/watercoop/waterbill/internal/api/v1"
	"github.com/watercoop/waterbill/internal/service"
	"github.com/watercoop/waterbill/internal/testutil"
	"github.com/watercoop/waterbill/internal/types"
)

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router *gin.Engine
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	cfg := s.GetConfig()
	ledger, err := service.NewLedger(cfg)
	s.Require().NoError(err)

	stores := s.GetStores()
	params := service.NewServiceParams(
		s.GetLogger(),
		cfg,
		s.GetDB(),
		s.GetCache(),
		s.GetMetrics(),
		stores.ClientRepo,
		stores.BillRepo,
		stores.PartialPaymentRepo,
		stores.ConnectionStatusRepo,
		ledger,
		service.NewPolicy(cfg),
		s.GetPublisher(),
	)
	params.Now = s.Clock()
	billing := service.NewBillingService(params)

	s.router = NewRouter(Handlers{
		Health:               v1.NewHealthHandler(nil, s.GetLogger()),
		Client:               v1.NewClientHandler(billing, s.GetLogger()),
		Bill:                 v1.NewBillHandler(billing, s.GetLogger()),
		CronConnectionStatus: cron.NewConnectionStatusCronHandler(billing, s.GetLogger()),
	}, cfg, s.GetLogger(), s.GetMetrics())
}

func (s *RouterSuite) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *RouterSuite) registerClient() string {
	w, out := s.do(http.MethodPost, "/v1/clients", map[string]any{
		"first_name":            "Maria",
		"last_name":             "Santos",
		"initial_meter_reading": 100,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return out["id"].(string)
}

func (s *RouterSuite) createBill(clientID string, current int64) map[string]any {
	w, out := s.do(http.MethodPost, "/v1/bills", map[string]any{
		"client_id":       clientID,
		"current_reading": current,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return out
}

func (s *RouterSuite) errorCode(out map[string]any) string {
	errBody, ok := out["error"].(map[string]any)
	s.Require().True(ok, "missing error body")
	return errBody["code"].(string)
}

func (s *RouterSuite) TestHealth() {
	w, out := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ok", out["status"])
	s.NotEmpty(w.Header().Get(types.HeaderRequestID))
}

func (s *RouterSuite) TestRequestIDIsEchoed() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(types.HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal("req-123", w.Header().Get(types.HeaderRequestID))
}

func (s *RouterSuite) TestMetricsEndpoint() {
	s.registerClient()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "waterbill_")
}

func (s *RouterSuite) TestClientEndpoints() {
	id := s.registerClient()

	w, out := s.do(http.MethodGet, "/v1/clients/"+id, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("Maria Santos", out["full_name"])
	s.Equal(string(types.ConnectionStatusConnected), out["connection_status"])

	w, out = s.do(http.MethodGet, "/v1/clients?limit=10", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(out["items"], 1)

	w, out = s.do(http.MethodGet, "/v1/clients/"+id+"/status", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(string(types.ConnectionStatusConnected), out["connection_status"])

	w, out = s.do(http.MethodGet, "/v1/clients/"+id+"/status/history", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(out["items"], 1)
}

func (s *RouterSuite) TestRegisterClientValidation() {
	w, out := s.do(http.MethodPost, "/v1/clients", map[string]any{"first_name": "Maria"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(false, out["success"])
	s.Equal("validation_error", s.errorCode(out))
}

func (s *RouterSuite) TestUnknownClient() {
	w, out := s.do(http.MethodGet, "/v1/clients/cli_missing", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("not_found", s.errorCode(out))

	w, _ = s.do(http.MethodGet, "/v1/clients/cli_missing/bills", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestBillAndPaymentFlow() {
	clientID := s.registerClient()
	created := s.createBill(clientID, 150)
	billID := created["id"].(string)
	s.Equal("500", created["bill_amount"])
	s.Equal(string(types.BillPaymentStatusUnpaid), created["payment_status"])

	w, out := s.do(http.MethodPost, "/v1/bills/"+billID+"/payments", map[string]any{
		"amount":                  "300",
		"expected_payment_amount": "0",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(string(types.BillPaymentStatusUnderpaid), out["payment_status"])
	s.Equal("200", out["remaining_balance"])

	// the cashier's view is now stale
	w, out = s.do(http.MethodPost, "/v1/bills/"+billID+"/payments", map[string]any{
		"amount":                  "200",
		"expected_payment_amount": "0",
	})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("stale_bill_state", s.errorCode(out))

	w, out = s.do(http.MethodPost, "/v1/bills/"+billID+"/payments", map[string]any{
		"amount":                  "200",
		"expected_payment_amount": "300",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(string(types.BillPaymentStatusPaid), out["payment_status"])

	w, out = s.do(http.MethodGet, "/v1/bills/"+billID+"/payments", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(out["items"], 2)
	s.Equal("500", out["total_paid"])

	w, out = s.do(http.MethodGet, "/v1/clients/"+clientID+"/bills", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(out["items"], 1)

	w, out = s.do(http.MethodGet, "/v1/bills?payment_status=paid", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(out["items"], 1)
}

func (s *RouterSuite) TestBillingErrors() {
	clientID := s.registerClient()

	w, out := s.do(http.MethodPost, "/v1/bills", map[string]any{
		"client_id":       clientID,
		"current_reading": 90,
	})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("invalid_reading", s.errorCode(out))

	created := s.createBill(clientID, 120)
	w, out = s.do(http.MethodPost, "/v1/bills", map[string]any{
		"client_id":       clientID,
		"current_reading": 130,
	})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("open_bill_exists", s.errorCode(out))

	w, out = s.do(http.MethodPost, "/v1/bills/"+created["id"].(string)+"/payments", map[string]any{
		"amount":                  "0",
		"expected_payment_amount": "0",
	})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("non_positive_amount", s.errorCode(out))

	w, out = s.do(http.MethodGet, "/v1/bills/bill_missing", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("not_found", s.errorCode(out))

	w, _ = s.do(http.MethodGet, "/v1/bills?payment_status=bogus", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestConnectionStatusSweep() {
	clientID := s.registerClient()
	created := s.createBill(clientID, 110)
	dueDate, err := time.Parse(time.RFC3339, created["due_date"].(string))
	s.Require().NoError(err)

	// an empty body sweeps at the service clock, where nothing is overdue yet
	w, out := s.do(http.MethodPost, "/v1/cron/connection-status/evaluate", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.EqualValues(1, out["evaluated"])
	s.Empty(out["transitions"])

	w, out = s.do(http.MethodPost, "/v1/cron/connection-status/evaluate", map[string]any{
		"at": dueDate.AddDate(0, 0, 8),
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Len(out["transitions"], 1)

	w, out = s.do(http.MethodGet, "/v1/clients/"+clientID+"/status", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(string(types.ConnectionStatusDisconnected), out["connection_status"])
}
