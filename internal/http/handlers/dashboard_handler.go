// Dashboard and agent-performance HTTP handlers.
//
// This file exposes the reporting endpoints:
//   - GET /admin/dashboard        (population totals, stage breakdown, agents)
//   - GET /agents/performance     (per-agent performance list)
//   - GET /agents/:id/deals       (one agent's book, admin view)
//   - GET /agents/:id/deals/active
//
// Aggregates are recomputed per request; responses are advisory and may lag
// concurrent writes slightly.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rakeshrachapudi/go-realty-backend/internal/domain"
	"github.com/rakeshrachapudi/go-realty-backend/internal/services"
)

// DashboardService defines the aggregation operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type DashboardService interface {
	// AgentPerformanceMetrics reports per-agent deal statistics.
	AgentPerformanceMetrics(ctx context.Context) ([]services.AgentPerformance, error)
	// Admin builds the full admin dashboard.
	Admin(ctx context.Context) (*services.AdminDashboard, error)
}

// AgentBookService is the slice of deal operations the agent endpoints use.
// *services.DealService satisfies it.
type AgentBookService interface {
	DealsForAgent(ctx context.Context, agentID uint) ([]services.DealDetail, error)
	ActiveDealsForAgent(ctx context.Context, agentID uint) ([]domain.Deal, error)
}

// AdminDashboard returns the aggregate dashboard over the full deal
// population.
func (h *Handlers) AdminDashboard(c *gin.Context) {
	dash, err := h.dashSvc.Admin(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, dash)
}

// AgentPerformance returns the performance report for every AGENT-role user.
func (h *Handlers) AgentPerformance(c *gin.Context) {
	perf, err := h.dashSvc.AgentPerformanceMetrics(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, perf)
}

// AgentDeals returns all deals brokered by one agent (admin view). The
// target must hold the AGENT or ADMIN role.
func (h *Handlers) AgentDeals(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	deals, err := h.agentSvc.DealsForAgent(c.Request.Context(), id)
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListDealsResponse{Deals: deals, Total: len(deals)})
}

// ActiveAgentDeals returns an agent's not-yet-completed deals.
func (h *Handlers) ActiveAgentDeals(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	deals, err := h.agentSvc.ActiveDealsForAgent(c.Request.Context(), id)
	if err != nil {
		failDealErr(c, err)
		return
	}
	ok(c, http.StatusOK, deals)
}
