// Package services – DashboardService
//
// This file implements the aggregation/dashboard engine. All aggregates are
// recomputed on demand over the current deal population; there are no cached
// or incrementally maintained counters, which keeps transitions free of
// invalidation logic at the cost of an O(n) scan per report. Reads are not
// linearizable with concurrent writes; the dashboard is advisory.
package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rakeshrachapudi/go-realty-backend/internal/domain"
	"github.com/rakeshrachapudi/go-realty-backend/internal/repo"
)

// StageBreakdown counts how many of the input deals currently sit at each
// stage. The result always carries all seven stage keys, defaulting to 0, so
// the counts sum exactly to len(deals).
func StageBreakdown(deals []domain.Deal) map[domain.DealStage]int64 {
	out := make(map[domain.DealStage]int64, len(domain.AllStages()))
	for _, s := range domain.AllStages() {
		out[s] = 0
	}
	for _, d := range deals {
		out[d.Stage]++
	}
	return out
}

// ConversionRate reports completed/total as a percentage formatted to two
// decimal places with a trailing %. An empty set yields "0.00%".
func ConversionRate(deals []domain.Deal) string {
	if len(deals) == 0 {
		return "0.00%"
	}
	var completed int
	for _, d := range deals {
		if d.Stage == domain.StageCompleted {
			completed++
		}
	}
	return fmt.Sprintf("%.2f%%", float64(completed)/float64(len(deals))*100)
}

// AverageDealPrice returns the mean agreed price over the deals that carry
// one, rounded half-up to two decimal places. Deals without a price do not
// dilute the mean; a set with no priced deal yields zero.
func AverageDealPrice(deals []domain.Deal) decimal.Decimal {
	sum := decimal.Zero
	var priced int64
	for _, d := range deals {
		if d.AgreedPrice != nil {
			sum = sum.Add(*d.AgreedPrice)
			priced++
		}
	}
	if priced == 0 {
		return decimal.Zero
	}
	return sum.DivRound(decimal.NewFromInt(priced), 2)
}

// AgentPerformance summarizes one agent's deal book: volume counts, the
// conversion rate, the average agreed price, and a per-stage breakdown.
type AgentPerformance struct {
	AgentID     uint   `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	AgentEmail  string `json:"agent_email"`
	AgentMobile string `json:"agent_mobile"`

	TotalDeals     int64 `json:"total_deals"`
	ActiveDeals    int64 `json:"active_deals"`
	CompletedDeals int64 `json:"completed_deals"`

	ConversionRate   string                     `json:"conversion_rate"`
	AverageDealPrice decimal.Decimal            `json:"average_deal_price"`
	DealsByStage     map[domain.DealStage]int64 `json:"deals_by_stage"`
}

// AdminDashboard aggregates the whole deal population for the admin view.
type AdminDashboard struct {
	TotalDeals         int64                      `json:"total_deals"`
	ActiveDealCount    int64                      `json:"active_deal_count"`
	CompletedDealCount int64                      `json:"completed_deal_count"`
	DealsByStage       map[domain.DealStage]int64 `json:"deals_by_stage"`
	AgentPerformance   []AgentPerformance         `json:"agent_performance"`
}

// DashboardService computes the derived reports over the deal store.
type DashboardService struct {
	// DB is the GORM handle used for read-only aggregation queries.
	DB *gorm.DB
}

// NewDashboardService constructs a DashboardService over the given handle.
func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{DB: db}
}

// AgentPerformanceMetrics computes the per-agent report for every directory
// user holding the AGENT role. Agents with no deals are included with zero
// counts and a "0.00%" conversion rate.
func (s *DashboardService) AgentPerformanceMetrics(ctx context.Context) ([]AgentPerformance, error) {
	agents, err := repo.ListUsersByRole(ctx, s.DB, domain.RoleAgent)
	if err != nil {
		return nil, err
	}

	out := make([]AgentPerformance, 0, len(agents))
	for _, agent := range agents {
		deals, err := repo.ListDealsByAgent(ctx, s.DB, agent.ID)
		if err != nil {
			return nil, err
		}

		var completed int64
		for _, d := range deals {
			if d.Stage == domain.StageCompleted {
				completed++
			}
		}
		total := int64(len(deals))

		out = append(out, AgentPerformance{
			AgentID:          agent.ID,
			AgentName:        agent.FullName(),
			AgentEmail:       agent.Email,
			AgentMobile:      agent.Mobile,
			TotalDeals:       total,
			ActiveDeals:      total - completed,
			CompletedDeals:   completed,
			ConversionRate:   ConversionRate(deals),
			AverageDealPrice: AverageDealPrice(deals),
			DealsByStage:     StageBreakdown(deals),
		})
	}
	return out, nil
}

// Admin builds the full admin dashboard: population totals, the complete
// stage breakdown, and the agent performance list.
func (s *DashboardService) Admin(ctx context.Context) (*AdminDashboard, error) {
	deals, err := repo.ListAllDeals(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	var completed int64
	for _, d := range deals {
		if d.Stage == domain.StageCompleted {
			completed++
		}
	}
	total := int64(len(deals))

	agents, err := s.AgentPerformanceMetrics(ctx)
	if err != nil {
		return nil, err
	}

	return &AdminDashboard{
		TotalDeals:         total,
		ActiveDealCount:    total - completed,
		CompletedDealCount: completed,
		DealsByStage:       StageBreakdown(deals),
		AgentPerformance:   agents,
	}, nil
}
