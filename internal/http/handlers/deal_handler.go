// Deal HTTP handlers.
//
// This file exposes REST endpoints for deal resources:
//   - POST /deals                   (open a deal, strict guards)
//   - POST /deals/find-or-create    (implicit deal-opening flow)
//   - GET  /deals                   (role-scoped list, ETag support)
//   - GET  /deals/:id               (single record)
//   - PUT  /deals/:id/stage         (advance the workflow)
//   - PUT  /deals/:id/agent         (assign an agent)
//   - GET  /properties/:id/deals    (deals on one property)
//   - GET  /buyers/:id/deals/active (a buyer's open deals)
//   - GET  /stages/:stage/deals     (all deals at one stage)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate sentinel errors into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rakeshrachapudi/go-realty-backend/internal/domain"
	"github.com/rakeshrachapudi/go-realty-backend/internal/repo"
	"github.com/rakeshrachapudi/go-realty-backend/internal/services"
	"github.com/rakeshrachapudi/go-realty-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// DealService defines the deal lifecycle operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type DealService interface {
	// Create opens a deal through the strict guarded entry point.
	Create(ctx context.Context, in services.CreateDealInput) (*domain.Deal, error)
	// FindOrCreate returns the (property, buyer) deal, creating it if absent.
	FindOrCreate(ctx context.Context, propertyID, buyerID uint, agentID *uint) (*domain.Deal, error)
	// AdvanceStage moves a deal forward in the stage enumeration.
	AdvanceStage(ctx context.Context, dealID uint, target domain.DealStage, note, actor string) (*domain.Deal, error)
	// AssignAgent attaches an agent to an existing deal.
	AssignAgent(ctx context.Context, dealID, agentID uint, actor string) (*domain.Deal, error)
	// Get fetches one deal by ID.
	Get(ctx context.Context, dealID uint) (*domain.Deal, error)
	// DealsForActor returns the denormalized deals visible under a view.
	DealsForActor(ctx context.Context, userID uint, view domain.DealView) ([]services.DealDetail, error)
	// DealsForProperty returns every deal on a property.
	DealsForProperty(ctx context.Context, propertyID uint) ([]domain.Deal, error)
	// ActiveDealsForBuyer returns a buyer's not-yet-completed deals.
	ActiveDealsForBuyer(ctx context.Context, buyerID uint) ([]domain.Deal, error)
	// DealsByStage returns every deal currently at one stage.
	DealsByStage(ctx context.Context, stage domain.DealStage) ([]domain.Deal, error)
}

//
// DTOs
//

// CreateDealRequest is the JSON payload for opening a deal.
type CreateDealRequest struct {
	PropertyID  uint             `json:"property_id" binding:"required"`
	BuyerID     uint             `json:"buyer_id" binding:"required"`
	AgentID     *uint            `json:"agent_id"`
	AgreedPrice *decimal.Decimal `json:"agreed_price"`
	Notes       string           `json:"notes"`
}

// FindOrCreateDealRequest is the JSON payload for the implicit entry point.
type FindOrCreateDealRequest struct {
	PropertyID uint  `json:"property_id" binding:"required"`
	BuyerID    uint  `json:"buyer_id" binding:"required"`
	AgentID    *uint `json:"agent_id"`
}

// AdvanceStageRequest is the JSON payload for a stage transition.
type AdvanceStageRequest struct {
	Stage string `json:"stage" binding:"required"`
	Note  string `json:"note"`
}

// AssignAgentRequest is the JSON payload for attaching an agent.
type AssignAgentRequest struct {
	AgentID uint `json:"agent_id" binding:"required"`
}

// ListDealsResponse wraps a role-scoped deal listing.
type ListDealsResponse struct {
	Deals []services.DealDetail `json:"deals"`
	Total int                   `json:"total"`
}

//
// Helpers
//

// actor extracts the acting username for audit attribution. It prefers the
// "actor" context key (set by upstream identification), then the X-Username
// header, and finally a demo fallback.
func actor(c *gin.Context) string {
	if v, ok := c.Get("actor"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Username")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// requestUserID extracts the numeric acting user ID from the X-User-ID
// header; it reports false when absent or malformed.
func requestUserID(c *gin.Context) (uint, bool) {
	return utils.ParseUint(strings.TrimSpace(c.GetHeader("X-User-ID")))
}

// pathID parses the named numeric path parameter, failing the request with
// 400 when it is not a positive integer.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.ParseUint(c.Param(name))
	if !ok || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// failDealErr translates service sentinel errors into the HTTP taxonomy.
// Unrecognized errors become 500s.
func failDealErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrDealNotFound),
		errors.Is(err, services.ErrPropertyNotFound),
		errors.Is(err, services.ErrBuyerNotFound),
		errors.Is(err, services.ErrAgentNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrDuplicateDeal),
		errors.Is(err, services.ErrStaleDeal):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrNotAnAgent),
		errors.Is(err, services.ErrAgentOwnsProperty),
		errors.Is(err, services.ErrBuyerOwnsProperty):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrInvalidPrice),
		errors.Is(err, services.ErrInvalidStage):
		fail(c, http.StatusBadRequest, ErrCodeInvalidArgument, err.Error())
	case errors.Is(err, services.ErrStageRegression):
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidTransition, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for deals and dashboards. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	dealSvc  DealService
	agentSvc AgentBookService
	dashSvc  DashboardService
}

// New constructs a Handlers instance bound to the given services.
func New(dealSvc DealService, agentSvc AgentBookService, dashSvc DashboardService) *Handlers {
	return &Handlers{dealSvc: dealSvc, agentSvc: agentSvc, dashSvc: dashSvc}
}

//
// Handlers
//

// CreateDeal opens a new deal through the strict guarded entry point and
// returns the created record with 201.
func (h *Handlers) CreateDeal(c *gin.Context) {
	var req CreateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	d, err := h.dealSvc.Create(c.Request.Context(), services.CreateDealInput{
		PropertyID:  req.PropertyID,
		BuyerID:     req.BuyerID,
		AgentID:     req.AgentID,
		AgreedPrice: req.AgreedPrice,
		Notes:       strings.TrimSpace(req.Notes),
		Actor:       actor(c),
	})
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusCreated, d)
}

// FindOrCreateDeal returns the existing deal for the (property, buyer) pair
// or opens one through the looser implicit entry point.
func (h *Handlers) FindOrCreateDeal(c *gin.Context) {
	var req FindOrCreateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	d, err := h.dealSvc.FindOrCreate(c.Request.Context(), req.PropertyID, req.BuyerID, req.AgentID)
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// ListDeals returns the deals visible to the requesting user under the role
// given in the "role" query parameter. Supports a weak ETag computed from the
// visible row count and newest update; an If-None-Match hit returns 304.
func (h *Handlers) ListDeals(c *gin.Context) {
	ctx := c.Request.Context()

	view, err := domain.ParseDealView(c.Query("role"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidArgument,
			"role must be one of BUYER, SELLER, AGENT, ADMIN")
		return
	}

	uid, haveUID := requestUserID(c)
	if !haveUID && view != domain.ViewAdmin {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-User-ID header is required")
		return
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.dealSvc.(*services.DealService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, serr := repo.DealsStats(ctx, db, view, uid)
		if serr == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"deals:%s:%d:%d:%d"`, view, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	deals, err := h.dealSvc.DealsForActor(ctx, uid, view)
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListDealsResponse{Deals: deals, Total: len(deals)})
}

// GetDeal returns a single deal record by ID.
func (h *Handlers) GetDeal(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	d, err := h.dealSvc.Get(c.Request.Context(), id)
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// AdvanceStage moves a deal to the requested stage, appending the optional
// note to the audit log. Stage regression is rejected with 422.
func (h *Handlers) AdvanceStage(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}

	var req AdvanceStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	stage, err := domain.ParseDealStage(strings.ToUpper(strings.TrimSpace(req.Stage)))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidArgument, err.Error())
		return
	}

	d, err := h.dealSvc.AdvanceStage(c.Request.Context(), id, stage, strings.TrimSpace(req.Note), actor(c))
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// AssignAgent attaches an agent to an existing deal.
func (h *Handlers) AssignAgent(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}

	var req AssignAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	d, err := h.dealSvc.AssignAgent(c.Request.Context(), id, req.AgentID, actor(c))
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// PropertyDeals returns every deal opened against one property.
func (h *Handlers) PropertyDeals(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	deals, err := h.dealSvc.DealsForProperty(c.Request.Context(), id)
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusOK, deals)
}

// ActiveBuyerDeals returns a buyer's not-yet-completed deals.
func (h *Handlers) ActiveBuyerDeals(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	deals, err := h.dealSvc.ActiveDealsForBuyer(c.Request.Context(), id)
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusOK, deals)
}

// StageDeals returns every deal currently sitting at the stage named in the
// path.
func (h *Handlers) StageDeals(c *gin.Context) {
	stage, err := domain.ParseDealStage(strings.ToUpper(strings.TrimSpace(c.Param("stage"))))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidArgument, err.Error())
		return
	}
	deals, err := h.dealSvc.DealsByStage(c.Request.Context(), stage)
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusOK, deals)
}
