package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/warp/condo-repairs/repairs"
)

// =============================================================================
// REPLACE-ALL SAVE
// =============================================================================

const (
	insertUnitSQL = `
		INSERT INTO units (address_number, address_street, name1, name2)
		VALUES (?, ?, ?, ?)
	`
	insertRepairItemSQL = `
		INSERT INTO repair_items
		(unit_id, repair_type, description, priority, estimated_cost, supplier,
		 required_completion_date, actual_completion_status, actual_completion_date,
		 priority_score, urgency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
)

// ReplaceAll overwrites every unit and repair item with units and returns
// the stored records with their new identifiers. Nil entries are skipped and
// the dual unit shape is resolved before anything is written.
func (s *Store) ReplaceAll(ctx context.Context, units []*repairs.UnitInput) ([]repairs.UnitRecord, error) {
	return s.SaveRecords(ctx, repairs.ResolveAll(units))
}

// SaveRecords is ReplaceAll for records that are already resolved.
func (s *Store) SaveRecords(ctx context.Context, records []repairs.UnitRecord) ([]repairs.UnitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var saved []repairs.UnitRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM repair_items"); err != nil {
			return fmt.Errorf("clearing repair items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM units"); err != nil {
			return fmt.Errorf("clearing units: %w", err)
		}

		unitStmt, err := tx.PrepareContext(ctx, insertUnitSQL)
		if err != nil {
			return fmt.Errorf("preparing unit insert: %w", err)
		}
		defer unitStmt.Close()

		itemStmt, err := tx.PrepareContext(ctx, insertRepairItemSQL)
		if err != nil {
			return fmt.Errorf("preparing repair item insert: %w", err)
		}
		defer itemStmt.Close()

		for i, rec := range records {
			res, err := unitStmt.ExecContext(ctx,
				rec.AddressNumber, rec.AddressStreet, rec.Name1, rec.Name2)
			if err != nil {
				return fmt.Errorf("inserting unit %d: %w", i, err)
			}
			unitID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("reading unit id: %w", err)
			}

			for j, item := range rec.RepairItems {
				item.Normalize()
				if _, err := itemStmt.ExecContext(ctx,
					unitID,
					item.RepairType,
					item.Description,
					item.Priority,
					item.EstimatedCost,
					item.Supplier,
					item.RequiredCompletionDate,
					string(item.ActualCompletionStatus),
					item.ActualCompletionDate,
					item.PriorityScore,
					item.Urgency,
				); err != nil {
					return fmt.Errorf("inserting repair item %d of unit %d: %w", j, i, err)
				}
			}
		}

		saved, err = loadAll(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateRepairItem applies update to one repair item and returns the number
// of rows matched: 1 on success, 0 when no item has that id. Repeating an
// identical update still reports 1.
func (s *Store) UpdateRepairItem(ctx context.Context, id int64, update repairs.ItemUpdate) (int64, error) {
	if id <= 0 {
		return 0, &repairs.ValidationError{Field: "repair item id", Message: "must be a positive integer"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var status *string
	if update.ActualCompletionStatus != nil {
		v := string(*update.ActualCompletionStatus)
		status = &v
	}
	var supplier *string
	if update.Supplier != nil {
		v := strings.TrimSpace(*update.Supplier)
		supplier = &v
	}

	query := `
		UPDATE repair_items SET
			priority = COALESCE(?, priority),
			estimated_cost = COALESCE(?, estimated_cost),
			supplier = COALESCE(?, supplier),
			required_completion_date = COALESCE(?, required_completion_date),
			actual_completion_status = COALESCE(?, actual_completion_status),
			actual_completion_date = COALESCE(?, actual_completion_date)
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		update.Priority,
		update.EstimatedCost,
		supplier,
		update.RequiredCompletionDate,
		status,
		update.ActualCompletionDate,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update repair item %d: %w", id, err)
	}
	return res.RowsAffected()
}

// =============================================================================
// READS
// =============================================================================

const repairItemColumns = `
	id, unit_id,
	COALESCE(repair_type, ''), COALESCE(description, ''),
	COALESCE(priority, 1), COALESCE(estimated_cost, 0), COALESCE(supplier, ''),
	COALESCE(required_completion_date, ''),
	COALESCE(actual_completion_status, 'incomplete'),
	COALESCE(actual_completion_date, ''),
	COALESCE(priority_score, 0), COALESCE(urgency, '')
`

// GetUnit returns the unit with its repair items ordered by descending
// priority then repair type, or nil when no unit has that id.
func (s *Store) GetUnit(ctx context.Context, id int64) (*repairs.UnitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec repairs.UnitRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(address_number, ''), COALESCE(address_street, ''),
		       COALESCE(name1, ''), COALESCE(name2, '')
		FROM units WHERE id = ?
	`, id).Scan(&rec.ID, &rec.AddressNumber, &rec.AddressStreet, &rec.Name1, &rec.Name2)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+repairItemColumns+" FROM repair_items WHERE unit_id = ? ORDER BY priority DESC, repair_type, id",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get repair items of unit %d: %w", id, err)
	}
	defer rows.Close()

	rec.RepairItems = []repairs.RepairItem{}
	for rows.Next() {
		item, err := scanRepairItem(rows)
		if err != nil {
			return nil, err
		}
		rec.RepairItems = append(rec.RepairItems, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetRepairItem returns one repair item, or nil when absent.
func (s *Store) GetRepairItem(ctx context.Context, id int64) (*repairs.RepairItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+repairItemColumns+" FROM repair_items WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get repair item %d: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	item, err := scanRepairItem(rows)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListUnits returns every unit with its repair count and total cost,
// ordered by address number.
func (s *Store) ListUnits(ctx context.Context) ([]repairs.UnitSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id,
		       COALESCE(u.address_number, ''), COALESCE(u.address_street, ''),
		       COALESCE(u.name1, ''), COALESCE(u.name2, ''),
		       COUNT(ri.id) AS repair_count,
		       COALESCE(SUM(ri.estimated_cost), 0) AS total_cost
		FROM units u
		LEFT JOIN repair_items ri ON u.id = ri.unit_id
		GROUP BY u.id
		ORDER BY u.address_number, u.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	units := []repairs.UnitSummary{}
	for rows.Next() {
		var u repairs.UnitSummary
		if err := rows.Scan(&u.ID, &u.AddressNumber, &u.AddressStreet, &u.Name1, &u.Name2,
			&u.RepairCount, &u.TotalCost); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// LoadAll returns every unit with its repair items nested, ordered by unit
// id then item id. The result can be passed back to ReplaceAll.
func (s *Store) LoadAll(ctx context.Context) ([]repairs.UnitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadAll(ctx, s.db)
}

func loadAll(ctx context.Context, q querier) ([]repairs.UnitRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT u.id,
		       COALESCE(u.address_number, ''), COALESCE(u.address_street, ''),
		       COALESCE(u.name1, ''), COALESCE(u.name2, ''),
		       ri.id, ri.repair_type, ri.description, ri.priority, ri.estimated_cost,
		       ri.supplier, ri.required_completion_date, ri.actual_completion_status,
		       ri.actual_completion_date, ri.priority_score, ri.urgency
		FROM units u
		LEFT JOIN repair_items ri ON u.id = ri.unit_id
		ORDER BY u.id, ri.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	defer rows.Close()

	records := []repairs.UnitRecord{}
	for rows.Next() {
		var (
			u          repairs.Unit
			itemID     sql.NullInt64
			repairType sql.NullString
			desc       sql.NullString
			priority   sql.NullInt64
			cost       sql.NullFloat64
			supplier   sql.NullString
			required   sql.NullString
			status     sql.NullString
			actual     sql.NullString
			score      sql.NullInt64
			urgency    sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.AddressNumber, &u.AddressStreet, &u.Name1, &u.Name2,
			&itemID, &repairType, &desc, &priority, &cost, &supplier, &required,
			&status, &actual, &score, &urgency); err != nil {
			return nil, fmt.Errorf("failed to scan unit row: %w", err)
		}

		if n := len(records); n == 0 || records[n-1].ID != u.ID {
			records = append(records, repairs.UnitRecord{Unit: u, RepairItems: []repairs.RepairItem{}})
		}
		if !itemID.Valid {
			continue
		}

		item := repairs.RepairItem{
			ID:                     itemID.Int64,
			UnitID:                 u.ID,
			RepairType:             repairType.String,
			Description:            desc.String,
			Priority:               int(priority.Int64),
			EstimatedCost:          cost.Float64,
			Supplier:               supplier.String,
			RequiredCompletionDate: required.String,
			ActualCompletionStatus: repairs.Status(status.String),
			ActualCompletionDate:   actual.String,
			PriorityScore:          int(score.Int64),
			Urgency:                urgency.String,
		}
		if !priority.Valid {
			item.Priority = repairs.DefaultPriority
		}
		if !status.Valid || status.String == "" {
			item.ActualCompletionStatus = repairs.StatusIncomplete
		}
		last := &records[len(records)-1]
		last.RepairItems = append(last.RepairItems, item)
	}
	return records, rows.Err()
}

// Stats are row counts for the debug endpoint.
type Stats struct {
	Units       int `json:"units"`
	RepairItems int `json:"repair_items"`
}

// Stats counts units and repair items.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM units), (SELECT COUNT(*) FROM repair_items)
	`).Scan(&st.Units, &st.RepairItems)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return st, nil
}

func scanRepairItem(rows *sql.Rows) (repairs.RepairItem, error) {
	var (
		item   repairs.RepairItem
		unitID sql.NullInt64
		status string
	)
	err := rows.Scan(
		&item.ID, &unitID,
		&item.RepairType, &item.Description,
		&item.Priority, &item.EstimatedCost, &item.Supplier,
		&item.RequiredCompletionDate, &status, &item.ActualCompletionDate,
		&item.PriorityScore, &item.Urgency,
	)
	if err != nil {
		return item, fmt.Errorf("failed to scan repair item: %w", err)
	}
	item.UnitID = unitID.Int64
	item.ActualCompletionStatus = repairs.Status(status)
	return item, nil
}
