package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/resto-system/internal/model"
)

// ServiceChargeFor возвращает наиболее специфичную активную конфигурацию
// сервисного сбора: уровень филиала перекрывает уровень бренда. Отсутствие
// конфигурации не является ошибкой — возвращается nil.
func (r *PostgresRepository) ServiceChargeFor(ctx context.Context, brandID, branchID int64) (*model.ServiceCharge, error) {
	var sc model.ServiceCharge
	err := r.q(ctx).QueryRow(ctx,
		`SELECT id, brand_id, branch_id, kind, value, active
		 FROM service_charges
		 WHERE brand_id = $1 AND (branch_id = $2 OR branch_id IS NULL) AND active
		 ORDER BY branch_id NULLS LAST
		 LIMIT 1`,
		brandID, branchID,
	).Scan(&sc.ID, &sc.BrandID, &sc.BranchID, &sc.Kind, &sc.Value, &sc.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select service charge: %w", err)
	}
	return &sc, nil
}

// TaxRatesFor возвращает активные налоговые ставки, действующие для бренда
// либо конкретного филиала.
func (r *PostgresRepository) TaxRatesFor(ctx context.Context, brandID, branchID int64) ([]model.TaxRate, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT id, brand_id, branch_id, name, percent, active
		 FROM tax_rates
		 WHERE brand_id = $1 AND (branch_id = $2 OR branch_id IS NULL) AND active
		 ORDER BY id`,
		brandID, branchID,
	)
	if err != nil {
		return nil, fmt.Errorf("select tax rates: %w", err)
	}
	defer rows.Close()

	var rates []model.TaxRate
	for rows.Next() {
		var tr model.TaxRate
		if err := rows.Scan(&tr.ID, &tr.BrandID, &tr.BranchID, &tr.Name, &tr.Percent, &tr.Active); err != nil {
			return nil, fmt.Errorf("scan tax rate: %w", err)
		}
		rates = append(rates, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rates, nil
}
