/*
reports.go - Report aggregator queries

PURPOSE:
  Read-only grouped summaries over repair_items, computed by SQLite:
    CostSummary          totals across every item
    SupplierBreakdown    per trimmed supplier (empty excluded)
    UnitBreakdown        per unit
    DateBreakdown        per required completion date (empty excluded)
    RepairTypeBreakdown  per repair type

NUMERIC SEMANTICS:
  SUM and AVG are the store's own aggregates. A NULL estimated_cost adds 0 to
  sums and is left out of averages. COALESCE turns the NULL an empty set
  produces into 0, so an empty store yields zero-valued results, not errors.

ORDERING:
  Each report orders by its documented key and breaks ties by the group key
  so output is deterministic.
*/
package sqlite

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/warp/condo-repairs/repairs"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// CostSummary is the store-wide cost overview.
type CostSummary struct {
	TotalCost        float64 `json:"total_cost"`
	AverageCost      float64 `json:"average_cost"`
	TotalRepairs     int     `json:"total_repairs"`
	HighPriorityCost float64 `json:"high_priority_cost"`
}

// SupplierReport is one supplier group.
type SupplierReport struct {
	Supplier    string  `json:"supplier"`
	RepairCount int     `json:"repair_count"`
	TotalCost   float64 `json:"total_cost"`
	AverageCost float64 `json:"average_cost"`
}

// UnitReport is one unit group.
type UnitReport struct {
	AddressNumber   string  `json:"address_number"`
	AddressStreet   string  `json:"address_street"`
	Name1           string  `json:"name1"`
	Name2           string  `json:"name2"`
	RepairCount     int     `json:"repair_count"`
	TotalCost       float64 `json:"total_cost"`
	AveragePriority float64 `json:"average_priority"`
}

// DateReport is one required-completion-date group.
type DateReport struct {
	CompletionDate string  `json:"completion_date"`
	RepairCount    int     `json:"repair_count"`
	TotalCost      float64 `json:"total_cost"`
}

// RepairTypeReport is one repair-type group.
type RepairTypeReport struct {
	RepairType        string  `json:"repair_type"`
	Count             int     `json:"count"`
	TotalCost         float64 `json:"total_cost"`
	AverageCost       float64 `json:"average_cost"`
	HighPriorityCount int     `json:"high_priority_count"`
}

// Overview bundles every report.
type Overview struct {
	Costs       CostSummary        `json:"costs"`
	Suppliers   []SupplierReport   `json:"suppliers"`
	Units       []UnitReport       `json:"units"`
	Dates       []DateReport       `json:"dates"`
	RepairTypes []RepairTypeReport `json:"repair_types"`
}

// =============================================================================
// QUERIES
// =============================================================================

// CostSummary returns total, average, count, and high priority cost.
func (s *Store) CostSummary(ctx context.Context) (CostSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c CostSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(estimated_cost), 0),
			COALESCE(AVG(estimated_cost), 0),
			COUNT(*),
			COALESCE(SUM(CASE WHEN priority >= ? THEN estimated_cost ELSE 0 END), 0)
		FROM repair_items
	`, repairs.HighPriorityCostThreshold).Scan(&c.TotalCost, &c.AverageCost, &c.TotalRepairs, &c.HighPriorityCost)
	if err != nil {
		return CostSummary{}, fmt.Errorf("cost summary: %w", err)
	}
	return c, nil
}

// SupplierBreakdown groups by trimmed supplier, largest total cost first.
func (s *Store) SupplierBreakdown(ctx context.Context) ([]SupplierReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			TRIM(supplier) AS supplier_name,
			COUNT(*),
			COALESCE(SUM(estimated_cost), 0) AS total_cost,
			COALESCE(AVG(estimated_cost), 0)
		FROM repair_items
		WHERE supplier IS NOT NULL AND TRIM(supplier) != ''
		GROUP BY supplier_name
		ORDER BY total_cost DESC, supplier_name
	`)
	if err != nil {
		return nil, fmt.Errorf("supplier breakdown: %w", err)
	}
	defer rows.Close()

	out := []SupplierReport{}
	for rows.Next() {
		var r SupplierReport
		if err := rows.Scan(&r.Supplier, &r.RepairCount, &r.TotalCost, &r.AverageCost); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UnitBreakdown groups by unit, largest total cost first.
func (s *Store) UnitBreakdown(ctx context.Context) ([]UnitReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			COALESCE(u.address_number, ''),
			COALESCE(u.address_street, ''),
			COALESCE(u.name1, ''),
			COALESCE(u.name2, ''),
			COUNT(ri.id),
			COALESCE(SUM(ri.estimated_cost), 0) AS total_cost,
			COALESCE(AVG(ri.priority), 0)
		FROM units u
		LEFT JOIN repair_items ri ON u.id = ri.unit_id
		GROUP BY u.id
		ORDER BY total_cost DESC, u.id
	`)
	if err != nil {
		return nil, fmt.Errorf("unit breakdown: %w", err)
	}
	defer rows.Close()

	out := []UnitReport{}
	for rows.Next() {
		var r UnitReport
		if err := rows.Scan(&r.AddressNumber, &r.AddressStreet, &r.Name1, &r.Name2,
			&r.RepairCount, &r.TotalCost, &r.AveragePriority); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DateBreakdown groups by required completion date, earliest first.
func (s *Store) DateBreakdown(ctx context.Context) ([]DateReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			required_completion_date,
			COUNT(*),
			COALESCE(SUM(estimated_cost), 0)
		FROM repair_items
		WHERE required_completion_date IS NOT NULL AND required_completion_date != ''
		GROUP BY required_completion_date
		ORDER BY required_completion_date
	`)
	if err != nil {
		return nil, fmt.Errorf("date breakdown: %w", err)
	}
	defer rows.Close()

	out := []DateReport{}
	for rows.Next() {
		var r DateReport
		if err := rows.Scan(&r.CompletionDate, &r.RepairCount, &r.TotalCost); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RepairTypeBreakdown groups by repair type, largest total cost first.
func (s *Store) RepairTypeBreakdown(ctx context.Context) ([]RepairTypeReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			COALESCE(repair_type, '') AS type_name,
			COUNT(*),
			COALESCE(SUM(estimated_cost), 0) AS total_cost,
			COALESCE(AVG(estimated_cost), 0),
			COALESCE(SUM(CASE WHEN priority >= ? THEN 1 ELSE 0 END), 0)
		FROM repair_items
		GROUP BY type_name
		ORDER BY total_cost DESC, type_name
	`, repairs.HighPriorityCountThreshold)
	if err != nil {
		return nil, fmt.Errorf("repair type breakdown: %w", err)
	}
	defer rows.Close()

	out := []RepairTypeReport{}
	for rows.Next() {
		var r RepairTypeReport
		if err := rows.Scan(&r.RepairType, &r.Count, &r.TotalCost, &r.AverageCost, &r.HighPriorityCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Overview runs every report concurrently.
func (s *Store) Overview(ctx context.Context) (Overview, error) {
	var ov Overview
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		ov.Costs, err = s.CostSummary(gCtx)
		return err
	})
	g.Go(func() (err error) {
		ov.Suppliers, err = s.SupplierBreakdown(gCtx)
		return err
	})
	g.Go(func() (err error) {
		ov.Units, err = s.UnitBreakdown(gCtx)
		return err
	})
	g.Go(func() (err error) {
		ov.Dates, err = s.DateBreakdown(gCtx)
		return err
	})
	g.Go(func() (err error) {
		ov.RepairTypes, err = s.RepairTypeBreakdown(gCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return ov, nil
}
