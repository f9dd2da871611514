package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rakeshrachapudi/go-realty-backend/internal/domain"
	"github.com/rakeshrachapudi/go-realty-backend/internal/services"
)

// ---------- test DB + router ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:deal_handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Property{}, &domain.Deal{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Directory fixture: user 1 owns property 10, user 2 buys, user 3 brokers.
	users := []domain.User{
		{ID: 1, Username: "seller_sam", FirstName: "Sam", LastName: "Seller", Role: domain.RoleUser},
		{ID: 2, Username: "buyer_bella", FirstName: "Bella", LastName: "Buyer", Role: domain.RoleUser},
		{ID: 3, Username: "agent_ravi", FirstName: "Ravi", LastName: "Agent", Role: domain.RoleAgent},
	}
	for _, u := range users {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user %s: %v", u.Username, err)
		}
	}
	p := domain.Property{ID: 10, OwnerID: 1, Title: "2BHK Lakeview", Price: decimal.NewFromInt(7500000), City: "Pune"}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed property: %v", err)
	}
	return db
}

func newDealRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	dealSvc := services.NewDealService(db)
	dashSvc := services.NewDashboardService(db)
	h := New(dealSvc, dealSvc, dashSvc)

	r := gin.New()
	r.POST("/deals", h.CreateDeal)
	r.POST("/deals/find-or-create", h.FindOrCreateDeal)
	r.GET("/deals", h.ListDeals)
	r.GET("/deals/:id", h.GetDeal)
	r.PUT("/deals/:id/stage", h.AdvanceStage)
	r.PUT("/deals/:id/agent", h.AssignAgent)
	r.GET("/properties/:id/deals", h.PropertyDeals)
	r.GET("/buyers/:id/deals/active", h.ActiveBuyerDeals)
	r.GET("/stages/:stage/deals", h.StageDeals)
	return r, db
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error envelope: %v (body %q)", err, w.Body.String())
	}
	return e
}

// ---------- tests ----------

func TestCreateDeal_Created(t *testing.T) {
	r, _ := newDealRouter(t)

	w := doJSON(t, r, http.MethodPost, "/deals",
		CreateDealRequest{PropertyID: 10, BuyerID: 2},
		map[string]string{"X-Username": "buyer_bella"})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var d domain.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode deal: %v", err)
	}
	if d.ID == 0 || d.Stage != domain.StageInquiry {
		t.Fatalf("unexpected deal: %+v", d)
	}
	if d.LastUpdatedBy != "buyer_bella" {
		t.Fatalf("actor from header not recorded: %q", d.LastUpdatedBy)
	}
}

func TestCreateDeal_BadJSONAndMissingFields(t *testing.T) {
	r, _ := newDealRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/deals", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed JSON: status = %d", w.Code)
	}

	// binding:"required" rejects a missing buyer_id
	w = doJSON(t, r, http.MethodPost, "/deals", map[string]any{"property_id": 10}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing field: status = %d", w.Code)
	}
}

func TestCreateDeal_ErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name       string
		body       CreateDealRequest
		wantStatus int
		wantCode   string
	}{
		{"unknown property", CreateDealRequest{PropertyID: 99, BuyerID: 2}, http.StatusNotFound, ErrCodeNotFound},
		{"buyer owns property", CreateDealRequest{PropertyID: 10, BuyerID: 1}, http.StatusForbidden, ErrCodeForbidden},
		{"non-agent broker", CreateDealRequest{PropertyID: 10, BuyerID: 2, AgentID: uptr(1)}, http.StatusForbidden, ErrCodeForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newDealRouter(t)
			w := doJSON(t, r, http.MethodPost, "/deals", tc.body, nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
			if e := decodeErr(t, w); e.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", e.Code, tc.wantCode)
			}
		})
	}
}

func TestCreateDeal_DuplicateConflict(t *testing.T) {
	r, _ := newDealRouter(t)

	body := CreateDealRequest{PropertyID: 10, BuyerID: 2}
	if w := doJSON(t, r, http.MethodPost, "/deals", body, nil); w.Code != http.StatusCreated {
		t.Fatalf("first create: %d", w.Code)
	}
	w := doJSON(t, r, http.MethodPost, "/deals", body, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: status = %d", w.Code)
	}
	if e := decodeErr(t, w); e.Code != ErrCodeConflict {
		t.Fatalf("duplicate: code = %q", e.Code)
	}
}

func TestFindOrCreateDeal_Idempotent(t *testing.T) {
	r, _ := newDealRouter(t)

	body := FindOrCreateDealRequest{PropertyID: 10, BuyerID: 2}
	w1 := doJSON(t, r, http.MethodPost, "/deals/find-or-create", body, nil)
	w2 := doJSON(t, r, http.MethodPost, "/deals/find-or-create", body, nil)
	if w1.Code != http.StatusOK || w2.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", w1.Code, w2.Code)
	}
	var d1, d2 domain.Deal
	if err := json.Unmarshal(w1.Body.Bytes(), &d1); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(w2.Body.Bytes(), &d2); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if d1.ID != d2.ID {
		t.Fatalf("expected the same deal back, got %d and %d", d1.ID, d2.ID)
	}
}

func TestAdvanceStage_FlowAndFailures(t *testing.T) {
	r, _ := newDealRouter(t)

	w := doJSON(t, r, http.MethodPost, "/deals", CreateDealRequest{PropertyID: 10, BuyerID: 2}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}
	var d domain.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	path := fmt.Sprintf("/deals/%d/stage", d.ID)

	// Lower-case wire value is accepted.
	w = doJSON(t, r, http.MethodPut, path, AdvanceStageRequest{Stage: "negotiation", Note: "offer made"},
		map[string]string{"X-Username": "agent_ravi"})
	if w.Code != http.StatusOK {
		t.Fatalf("advance: %d, body %s", w.Code, w.Body.String())
	}
	var got domain.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Stage != domain.StageNegotiation || got.NegotiationDate == nil {
		t.Fatalf("unexpected deal after advance: %+v", got)
	}

	// Regression is a 422 with its own code.
	w = doJSON(t, r, http.MethodPut, path, AdvanceStageRequest{Stage: "SHORTLIST"}, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("regression: status = %d", w.Code)
	}
	if e := decodeErr(t, w); e.Code != ErrCodeInvalidTransition {
		t.Fatalf("regression: code = %q", e.Code)
	}

	// Unknown stage is a 400.
	w = doJSON(t, r, http.MethodPut, path, AdvanceStageRequest{Stage: "CLOSED"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown stage: status = %d", w.Code)
	}

	// Unknown deal is a 404.
	w = doJSON(t, r, http.MethodPut, "/deals/9999/stage", AdvanceStageRequest{Stage: "PAYMENT"}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown deal: status = %d", w.Code)
	}

	// Non-numeric path id is a 400.
	w = doJSON(t, r, http.MethodPut, "/deals/abc/stage", AdvanceStageRequest{Stage: "PAYMENT"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad path id: status = %d", w.Code)
	}
}

func TestAssignAgent(t *testing.T) {
	r, _ := newDealRouter(t)

	w := doJSON(t, r, http.MethodPost, "/deals", CreateDealRequest{PropertyID: 10, BuyerID: 2}, nil)
	var d domain.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	path := fmt.Sprintf("/deals/%d/agent", d.ID)

	w = doJSON(t, r, http.MethodPut, path, AssignAgentRequest{AgentID: 3}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("assign: %d, body %s", w.Code, w.Body.String())
	}
	var got domain.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AgentID == nil || *got.AgentID != 3 {
		t.Fatalf("agent not attached: %+v", got)
	}

	// Plain USER as agent is forbidden.
	w = doJSON(t, r, http.MethodPut, path, AssignAgentRequest{AgentID: 2}, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-agent: status = %d", w.Code)
	}
}

func TestListDeals_RoleScopingAndValidation(t *testing.T) {
	r, _ := newDealRouter(t)

	if w := doJSON(t, r, http.MethodPost, "/deals", CreateDealRequest{PropertyID: 10, BuyerID: 2}, nil); w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}

	// Unknown role is a 400, not an empty list.
	w := doJSON(t, r, http.MethodGet, "/deals?role=OWNER", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown role: status = %d", w.Code)
	}
	if e := decodeErr(t, w); e.Code != ErrCodeInvalidArgument {
		t.Fatalf("unknown role: code = %q", e.Code)
	}

	// Non-admin views need the acting user.
	w = doJSON(t, r, http.MethodGet, "/deals?role=BUYER", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing X-User-ID: status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/deals?role=buyer", nil, map[string]string{"X-User-ID": "2"})
	if w.Code != http.StatusOK {
		t.Fatalf("buyer list: %d, body %s", w.Code, w.Body.String())
	}
	var resp ListDealsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Deals) != 1 {
		t.Fatalf("buyer list: %+v", resp)
	}
	if resp.Deals[0].PropertyTitle != "2BHK Lakeview" || resp.Deals[0].SellerName != "Sam Seller" {
		t.Fatalf("projection not denormalized: %+v", resp.Deals[0])
	}

	// The admin view works without X-User-ID.
	w = doJSON(t, r, http.MethodGet, "/deals?role=ADMIN", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin list: %d", w.Code)
	}

	// A buyer with no deals sees an empty list.
	w = doJSON(t, r, http.MethodGet, "/deals?role=BUYER", nil, map[string]string{"X-User-ID": "999"})
	if w.Code != http.StatusOK {
		t.Fatalf("empty buyer list: %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 0 {
		t.Fatalf("expected empty list, got %+v", resp)
	}
}

func TestListDeals_ETagRoundTrip(t *testing.T) {
	r, _ := newDealRouter(t)

	if w := doJSON(t, r, http.MethodPost, "/deals", CreateDealRequest{PropertyID: 10, BuyerID: 2}, nil); w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}

	hdr := map[string]string{"X-User-ID": "2"}
	w := doJSON(t, r, http.MethodGet, "/deals?role=BUYER", nil, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("first list: %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected an ETag on the listing")
	}

	w = doJSON(t, r, http.MethodGet, "/deals?role=BUYER", nil, map[string]string{
		"X-User-ID": "2", "If-None-Match": etag,
	})
	if w.Code != http.StatusNotModified {
		t.Fatalf("matching If-None-Match: status = %d", w.Code)
	}
}

func TestGetDealAndPropertyDeals(t *testing.T) {
	r, _ := newDealRouter(t)

	w := doJSON(t, r, http.MethodPost, "/deals", CreateDealRequest{PropertyID: 10, BuyerID: 2}, nil)
	var d domain.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/deals/%d", d.ID), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/deals/9999", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get missing: %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/properties/10/deals", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("property deals: %d", w.Code)
	}
	var list []domain.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != d.ID {
		t.Fatalf("property deals: %+v", list)
	}
}

func TestActiveBuyerDealsAndStageDeals(t *testing.T) {
	r, _ := newDealRouter(t)

	w := doJSON(t, r, http.MethodPost, "/deals", CreateDealRequest{PropertyID: 10, BuyerID: 2}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}
	var d domain.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = doJSON(t, r, http.MethodGet, "/buyers/2/deals/active", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("active buyer deals: %d", w.Code)
	}
	var active []domain.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &active); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(active) != 1 || active[0].ID != d.ID {
		t.Fatalf("active buyer deals: %+v", active)
	}

	// Completing the deal drops it from the active listing.
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/deals/%d/stage", d.ID), AdvanceStageRequest{Stage: "COMPLETED"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/buyers/2/deals/active", nil, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &active); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("completed deal leaked into active listing: %+v", active)
	}

	// Stage listing accepts lower-case values and rejects unknown ones.
	w = doJSON(t, r, http.MethodGet, "/stages/completed/deals", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stage deals: %d", w.Code)
	}
	var atStage []domain.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &atStage); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(atStage) != 1 {
		t.Fatalf("stage deals: %+v", atStage)
	}
	w = doJSON(t, r, http.MethodGet, "/stages/CLOSED/deals", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown stage: %d", w.Code)
	}
}

func uptr(v uint) *uint { return &v }
