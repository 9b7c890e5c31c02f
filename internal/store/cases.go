package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/model"
)

const caseColumns = `id, owner_id, case_date, hospital_name, doctor_name, patient_name, notes, created_at`

// CreateCase records a procedure and deducts its materials from owner's
// ledger in the same transaction.
func CreateCase(ctx context.Context, db *sqlx.DB, ownerID int64, c model.CaseRecord) (*model.CaseRecord, error) {
	c.HospitalName = strings.TrimSpace(c.HospitalName)
	c.DoctorName = strings.TrimSpace(c.DoctorName)
	c.PatientName = strings.TrimSpace(c.PatientName)
	if fields := c.Validate(); len(fields) > 0 {
		return nil, &apperr.ValidationError{Fields: fields}
	}

	c.ID = uuid.NewString()
	c.OwnerID = ownerID
	c.CreatedAt = now()

	lines := make([]model.RemoveLine, len(c.Materials))
	total := 0
	for i, m := range c.Materials {
		lines[i] = model.RemoveLine{
			MaterialName:    m.MaterialName,
			SerialLotNumber: m.SerialLotNumber,
			Quantity:        m.Quantity,
		}
		total += m.Quantity
	}

	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := removeStockItems(ctx, tx, lines, ownerID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO case_records (`+caseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.OwnerID, c.CaseDate, c.HospitalName, c.DoctorName, c.PatientName, c.Notes, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating case: %w", err)
		}

		for i := range c.Materials {
			m := &c.Materials[i]
			m.ID = uuid.NewString()
			m.CaseID = c.ID
			// removeStockItems trimmed the line; keep the stored material consistent.
			m.MaterialName = lines[i].MaterialName
			m.SerialLotNumber = lines[i].SerialLotNumber
			_, err := tx.ExecContext(ctx,
				`INSERT INTO case_materials (id, case_id, material_name, serial_lot_number, ubb_code, quantity)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				m.ID, m.CaseID, m.MaterialName, m.SerialLotNumber, m.UBBCode, m.Quantity,
			)
			if err != nil {
				return fmt.Errorf("adding case material: %w", err)
			}
		}

		_, err = AddHistory(ctx, tx, ownerID, model.HistoryCase,
			fmt.Sprintf("Case recorded at %s: %d materials, %d units", c.HospitalName, len(c.Materials), total),
			map[string]any{
				"caseId":        c.ID,
				"caseDate":      c.CaseDate.String(),
				"hospital":      c.HospitalName,
				"doctor":        c.DoctorName,
				"patient":       c.PatientName,
				"materialCount": len(c.Materials),
				"totalQuantity": total,
			},
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("case created", "case", c.ID, "owner", ownerID)
	return &c, nil
}

// ListCases returns the cases in scope, newest case date first.
func ListCases(ctx context.Context, q sqlx.QueryerContext, scope model.Scope) ([]model.CaseRecord, error) {
	query := `SELECT ` + caseColumns + ` FROM case_records`
	var args []any
	if !scope.All {
		query += ` WHERE owner_id = ?`
		args = append(args, scope.OwnerID)
	}
	query += ` ORDER BY case_date DESC, created_at DESC`

	var cases []model.CaseRecord
	if err := sqlx.SelectContext(ctx, q, &cases, query, args...); err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}

	for i := range cases {
		materials, err := listCaseMaterials(ctx, q, cases[i].ID)
		if err != nil {
			return nil, err
		}
		cases[i].Materials = materials
	}
	return cases, nil
}

func listCaseMaterials(ctx context.Context, q sqlx.QueryerContext, caseID string) ([]model.CaseMaterial, error) {
	materials := []model.CaseMaterial{}
	err := sqlx.SelectContext(ctx, q, &materials,
		`SELECT id, case_id, material_name, serial_lot_number, ubb_code, quantity
		 FROM case_materials WHERE case_id = ? ORDER BY rowid`, caseID)
	if err != nil {
		return nil, fmt.Errorf("listing case materials: %w", err)
	}
	return materials, nil
}

// GetCase returns a case with its materials. A non-nil owner must match.
func GetCase(ctx context.Context, q sqlx.QueryerContext, id string, owner *int64) (*model.CaseRecord, error) {
	var c model.CaseRecord
	found, err := getOne(ctx, q, &c, `SELECT `+caseColumns+` FROM case_records WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting case: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("case %s: %w", id, apperr.ErrNotFound)
	}
	if owner != nil && *owner != c.OwnerID {
		return nil, fmt.Errorf("case %s: %w", id, apperr.ErrForbidden)
	}

	c.Materials, err = listCaseMaterials(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCase deletes a case record. Consumed stock is not restored.
func DeleteCase(ctx context.Context, db *sqlx.DB, id string, owner *int64) error {
	err := inTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := GetCase(ctx, tx, id, owner); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM case_records WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting case: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("case deleted", "case", id)
	return nil
}
