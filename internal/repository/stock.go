package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
)

// StockReferenceExists сообщает, записана ли уже складская проводка с данной
// ссылкой идемпотентности.
func (r *PostgresRepository) StockReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_transactions WHERE reference = $1)`,
		reference,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check stock reference: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) recipeByKey(ctx context.Context, column string, key int64) (*model.Recipe, error) {
	var rec model.Recipe
	err := r.q(ctx).QueryRow(ctx,
		`SELECT id, item_id, variant_id, active FROM recipes WHERE `+column+` = $1 AND active LIMIT 1`,
		key,
	).Scan(&rec.ID, &rec.ItemID, &rec.VariantID, &rec.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select recipe: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx,
		`SELECT id, recipe_id, product_id, quantity, waste_pct
		 FROM recipe_lines
		 WHERE recipe_id = $1
		 ORDER BY id`,
		rec.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select recipe lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rl model.RecipeLine
		if err := rows.Scan(&rl.ID, &rl.RecipeID, &rl.ProductID, &rl.Quantity, &rl.WastePct); err != nil {
			return nil, fmt.Errorf("scan recipe line: %w", err)
		}
		rec.Lines = append(rec.Lines, rl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &rec, nil
}

// RecipeByVariant возвращает активный рецепт конкретного варианта позиции
// вместе со строками расхода; nil, если рецепта нет.
func (r *PostgresRepository) RecipeByVariant(ctx context.Context, variantID int64) (*model.Recipe, error) {
	return r.recipeByKey(ctx, "variant_id", variantID)
}

// RecipeByItem возвращает активный рецепт позиции без привязки к варианту;
// nil, если рецепта нет.
func (r *PostgresRepository) RecipeByItem(ctx context.Context, itemID int64) (*model.Recipe, error) {
	var rec model.Recipe
	err := r.q(ctx).QueryRow(ctx,
		`SELECT id, item_id, variant_id, active
		 FROM recipes
		 WHERE item_id = $1 AND variant_id IS NULL AND active
		 LIMIT 1`,
		itemID,
	).Scan(&rec.ID, &rec.ItemID, &rec.VariantID, &rec.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select recipe: %w", err)
	}
	full, err := r.recipeByKey(ctx, "id", rec.ID)
	if err != nil {
		return nil, err
	}
	return full, nil
}

// InsertStockTransaction добавляет складскую проводку. Уникальный индекс
// (reference, product_id) служит страховкой от гонки двух одновременных
// списаний: нарушение уникальности превращается в ErrDuplicateStockReference.
func (r *PostgresRepository) InsertStockTransaction(ctx context.Context, productID int64, quantity money.Amount, reference string) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO stock_transactions (product_id, quantity, reference) VALUES ($1, $2, $3)`,
		productID, quantity, reference,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateStockReference, reference)
		}
		return fmt.Errorf("insert stock transaction: %w", err)
	}
	return nil
}

// AdjustStockLevel атомарно изменяет остаток продукта, создавая запись при её
// отсутствии.
func (r *PostgresRepository) AdjustStockLevel(ctx context.Context, productID int64, delta money.Amount) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO stock_items (product_id, quantity, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (product_id)
		 DO UPDATE SET quantity = stock_items.quantity + EXCLUDED.quantity, updated_at = now()`,
		productID, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust stock level: %w", err)
	}
	return nil
}

// StockTransactionsByReference возвращает проводки по ссылке идемпотентности.
func (r *PostgresRepository) StockTransactionsByReference(ctx context.Context, reference string) ([]model.StockTransaction, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT id, product_id, quantity, reference, created_at
		 FROM stock_transactions
		 WHERE reference = $1
		 ORDER BY product_id`,
		reference,
	)
	if err != nil {
		return nil, fmt.Errorf("select stock transactions: %w", err)
	}
	defer rows.Close()

	var res []model.StockTransaction
	for rows.Next() {
		var st model.StockTransaction
		if err := rows.Scan(&st.ID, &st.ProductID, &st.Quantity, &st.Reference, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock transaction: %w", err)
		}
		res = append(res, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// StockLevels возвращает текущие остатки по всем продуктам.
func (r *PostgresRepository) StockLevels(ctx context.Context) ([]model.StockItem, error) {
	var res []model.StockItem

	err := r.withRetry(ctx, func() error {
		rows, err := r.q(ctx).Query(ctx,
			`SELECT product_id, quantity, updated_at FROM stock_items ORDER BY product_id`,
		)
		if err != nil {
			return fmt.Errorf("select stock levels: %w", err)
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			var si model.StockItem
			if err := rows.Scan(&si.ProductID, &si.Quantity, &si.UpdatedAt); err != nil {
				return fmt.Errorf("scan stock item: %w", err)
			}
			res = append(res, si)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}
