// Package stock реализует идемпотентное списание склада по проданным заказам.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
	"github.com/mmeshcher/resto-system/internal/repository"
)

// Store описывает контракт доступа к данным, используемый движком списания.
type Store interface {
	StockReferenceExists(ctx context.Context, reference string) (bool, error)
	OrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	RecipeByVariant(ctx context.Context, variantID int64) (*model.Recipe, error)
	RecipeByItem(ctx context.Context, itemID int64) (*model.Recipe, error)
	InsertStockTransaction(ctx context.Context, productID int64, quantity money.Amount, reference string) error
	AdjustStockLevel(ctx context.Context, productID int64, delta money.Amount) error
	StockTransactionsByReference(ctx context.Context, reference string) ([]model.StockTransaction, error)
}

// ConsumeReference возвращает детерминированную ссылку идемпотентности
// списания для заказа.
func ConsumeReference(orderID int64) string {
	return fmt.Sprintf("ORDER:%d", orderID)
}

// ReversalReference возвращает ссылку идемпотентности компенсирующей проводки.
func ReversalReference(orderID int64) string {
	return ConsumeReference(orderID) + ":REVERSAL"
}

// Engine выполняет списание и восстановление складских остатков. Все методы
// должны вызываться внутри транзакции вызывающей операции.
type Engine struct {
	store Store
}

// NewEngine создаёт движок списания поверх указанного хранилища.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Consume списывает склад по заказу ровно один раз. Повторный вызов с той же
// ссылкой (например, на переходах SERVED и затем PAID) ничего не делает:
// существующая проводка с этой ссылкой — признак завершённого списания.
func (e *Engine) Consume(ctx context.Context, orderID int64, reference string) error {
	exists, err := e.store.StockReferenceExists(ctx, reference)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	items, err := e.store.OrderItems(ctx, orderID)
	if err != nil {
		return err
	}

	// Агрегируем расход по продуктам до записи: одна проводка и одно
	// изменение остатка на продукт, а не на строку заказа.
	perProduct := make(map[int64]money.Amount)
	for _, it := range items {
		if it.Voided {
			continue
		}

		recipe, err := e.resolveRecipe(ctx, it)
		if err != nil {
			return err
		}
		if recipe == nil {
			continue
		}

		for _, rl := range recipe.Lines {
			qty := effectiveQuantity(it.Quantity, rl)
			perProduct[rl.ProductID] = perProduct[rl.ProductID].Add(qty)
		}
	}

	productIDs := make([]int64, 0, len(perProduct))
	for pid := range perProduct {
		productIDs = append(productIDs, pid)
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	for _, pid := range productIDs {
		qty := perProduct[pid]

		err := e.store.InsertStockTransaction(ctx, pid, qty.Neg(), reference)
		if err != nil {
			// Уникальный индекс (reference, product_id) закрывает гонку двух
			// транзакций, прошедших проверку существования до вставки.
			if errors.Is(err, repository.ErrDuplicateStockReference) {
				return nil
			}
			return err
		}

		if err := e.store.AdjustStockLevel(ctx, pid, qty.Neg()); err != nil {
			return err
		}
	}

	return nil
}

// Reverse восстанавливает склад по заказу компенсирующими проводками. Ничего
// не делает, если списания не было; идемпотентен по ссылке реверса.
func (e *Engine) Reverse(ctx context.Context, orderID int64) error {
	consumed, err := e.store.StockTransactionsByReference(ctx, ConsumeReference(orderID))
	if err != nil {
		return err
	}
	if len(consumed) == 0 {
		return nil
	}

	reversalRef := ReversalReference(orderID)
	exists, err := e.store.StockReferenceExists(ctx, reversalRef)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	for _, st := range consumed {
		restored := st.Quantity.Neg()

		err := e.store.InsertStockTransaction(ctx, st.ProductID, restored, reversalRef)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateStockReference) {
				return nil
			}
			return err
		}

		if err := e.store.AdjustStockLevel(ctx, st.ProductID, restored); err != nil {
			return err
		}
	}

	return nil
}

// resolveRecipe предпочитает рецепт конкретного варианта и откатывается к
// рецепту позиции. Строка без рецепта расход не создаёт.
func (e *Engine) resolveRecipe(ctx context.Context, it model.OrderItem) (*model.Recipe, error) {
	if it.VariantID != nil {
		recipe, err := e.store.RecipeByVariant(ctx, *it.VariantID)
		if err != nil {
			return nil, err
		}
		if recipe != nil {
			return recipe, nil
		}
	}
	return e.store.RecipeByItem(ctx, it.ItemID)
}

// effectiveQuantity вычисляет расход: количество строки × расход рецепта ×
// (1 + потери/100). Отсутствующий процент потерь означает ноль.
func effectiveQuantity(lineQuantity int, rl model.RecipeLine) money.Amount {
	qty := rl.Quantity.MulInt(int64(lineQuantity))
	if rl.WastePct != nil && !rl.WastePct.IsZero() {
		qty = qty.Add(qty.Percent(*rl.WastePct))
	}
	return qty.RoundQuantity()
}
