package repairs

import (
	"sort"
	"strings"
)

// TopPrioritiesLimit is the number of ranked items carried in a summary.
const TopPrioritiesLimit = 10

// RankedItem is a repair item placed in the overall priority ranking.
type RankedItem struct {
	Rank          int    `json:"priority_rank"`
	UnitIndex     int    `json:"unit_index"`
	AddressNumber string `json:"address_number"`
	AddressStreet string `json:"address_street"`
	RepairItem
}

// TypeTotals accumulates count and cost for one repair type.
type TypeTotals struct {
	Count     int     `json:"count"`
	TotalCost float64 `json:"total_cost"`
}

// BudgetSummary is the upload-time overview produced in heuristic mode.
type BudgetSummary struct {
	TotalRepairs        int                   `json:"total_repairs"`
	TotalEstimatedCost  float64               `json:"total_estimated_cost"`
	CriticalRepairs     int                   `json:"critical_repairs"`
	HighPriorityRepairs int                   `json:"high_priority_repairs"`
	RepairTypes         map[string]TypeTotals `json:"repair_types_breakdown"`
	TopPriorities       []RankedItem          `json:"top_10_priorities"`
}

// Rank orders every item across all units by descending priority score and
// numbers them from 1. Equal scores keep source order.
func Rank(records []UnitRecord) []RankedItem {
	var ranked []RankedItem
	for i, rec := range records {
		for _, item := range rec.RepairItems {
			ranked = append(ranked, RankedItem{
				UnitIndex:     i,
				AddressNumber: rec.AddressNumber,
				AddressStreet: rec.AddressStreet,
				RepairItem:    item,
			})
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].PriorityScore > ranked[b].PriorityScore
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Summarize builds the budget summary for a freshly mapped upload.
func Summarize(records []UnitRecord) BudgetSummary {
	ranked := Rank(records)

	summary := BudgetSummary{
		TotalRepairs:  len(ranked),
		RepairTypes:   make(map[string]TypeTotals),
		TopPriorities: []RankedItem{},
	}
	for _, item := range ranked {
		summary.TotalEstimatedCost += item.EstimatedCost

		switch item.Urgency {
		case UrgencyCritical:
			summary.CriticalRepairs++
		case UrgencyHigh:
			summary.HighPriorityRepairs++
		}

		key := strings.TrimSpace(item.RepairType)
		if key == "" {
			key = "Unknown"
		}
		t := summary.RepairTypes[key]
		t.Count++
		t.TotalCost += item.EstimatedCost
		summary.RepairTypes[key] = t
	}

	if len(ranked) > TopPrioritiesLimit {
		ranked = ranked[:TopPrioritiesLimit]
	}
	if len(ranked) > 0 {
		summary.TopPriorities = ranked
	}
	return summary
}
