package stock

import (
	"context"
	"fmt"
	"testing"

	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
	"github.com/mmeshcher/resto-system/internal/repository"
)

type stubStore struct {
	items          []model.OrderItem
	variantRecipes map[int64]*model.Recipe
	itemRecipes    map[int64]*model.Recipe

	transactions []model.StockTransaction
	levels       map[int64]money.Amount
}

func newStubStore() *stubStore {
	return &stubStore{
		variantRecipes: make(map[int64]*model.Recipe),
		itemRecipes:    make(map[int64]*model.Recipe),
		levels:         make(map[int64]money.Amount),
	}
}

func (s *stubStore) StockReferenceExists(ctx context.Context, reference string) (bool, error) {
	for _, st := range s.transactions {
		if st.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) OrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return s.items, nil
}

func (s *stubStore) RecipeByVariant(ctx context.Context, variantID int64) (*model.Recipe, error) {
	return s.variantRecipes[variantID], nil
}

func (s *stubStore) RecipeByItem(ctx context.Context, itemID int64) (*model.Recipe, error) {
	return s.itemRecipes[itemID], nil
}

func (s *stubStore) InsertStockTransaction(ctx context.Context, productID int64, quantity money.Amount, reference string) error {
	for _, st := range s.transactions {
		if st.Reference == reference && st.ProductID == productID {
			return fmt.Errorf("%w: %s", repository.ErrDuplicateStockReference, reference)
		}
	}
	s.transactions = append(s.transactions, model.StockTransaction{
		ProductID: productID,
		Quantity:  quantity,
		Reference: reference,
	})
	return nil
}

func (s *stubStore) AdjustStockLevel(ctx context.Context, productID int64, delta money.Amount) error {
	s.levels[productID] = s.levels[productID].Add(delta)
	return nil
}

func (s *stubStore) StockTransactionsByReference(ctx context.Context, reference string) ([]model.StockTransaction, error) {
	var res []model.StockTransaction
	for _, st := range s.transactions {
		if st.Reference == reference {
			res = append(res, st)
		}
	}
	return res, nil
}

func variantID(v int64) *int64 { return &v }

func wastePct(s string) *money.Amount {
	a := money.MustParse(s)
	return &a
}

func TestConsume_VariantRecipeWithWaste(t *testing.T) {
	store := newStubStore()
	store.items = []model.OrderItem{
		{ID: 1, ItemID: 10, VariantID: variantID(20), Quantity: 1},
	}
	store.variantRecipes[20] = &model.Recipe{
		ID: 1,
		Lines: []model.RecipeLine{
			{ProductID: 100, Quantity: money.MustParse("2"), WastePct: wastePct("10")},
		},
	}

	engine := NewEngine(store)
	if err := engine.Consume(context.Background(), 1, ConsumeReference(1)); err != nil {
		t.Fatalf("Consume error: %v", err)
	}

	if len(store.transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(store.transactions))
	}
	if got := store.transactions[0].Quantity.String(); got != "-2.2" {
		t.Fatalf("ledger quantity = %s, want -2.2", got)
	}
	if got := store.levels[100].String(); got != "-2.2" {
		t.Fatalf("stock level = %s, want -2.2", got)
	}
}

func TestConsume_Idempotent(t *testing.T) {
	store := newStubStore()
	store.items = []model.OrderItem{
		{ID: 1, ItemID: 10, Quantity: 2},
	}
	store.itemRecipes[10] = &model.Recipe{
		ID: 1,
		Lines: []model.RecipeLine{
			{ProductID: 100, Quantity: money.MustParse("1")},
		},
	}

	engine := NewEngine(store)
	ref := ConsumeReference(1)

	// Переходы SERVED и затем PAID вызывают списание дважды.
	if err := engine.Consume(context.Background(), 1, ref); err != nil {
		t.Fatalf("first Consume error: %v", err)
	}
	if err := engine.Consume(context.Background(), 1, ref); err != nil {
		t.Fatalf("second Consume error: %v", err)
	}

	if len(store.transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(store.transactions))
	}
	if got := store.levels[100].String(); got != "-2" {
		t.Fatalf("stock level = %s, want -2", got)
	}
}

func TestConsume_FallsBackToItemRecipe(t *testing.T) {
	store := newStubStore()
	store.items = []model.OrderItem{
		{ID: 1, ItemID: 10, VariantID: variantID(20), Quantity: 1},
	}
	// Рецепта варианта нет — используется рецепт позиции.
	store.itemRecipes[10] = &model.Recipe{
		ID: 2,
		Lines: []model.RecipeLine{
			{ProductID: 200, Quantity: money.MustParse("0.5")},
		},
	}

	engine := NewEngine(store)
	if err := engine.Consume(context.Background(), 1, ConsumeReference(1)); err != nil {
		t.Fatalf("Consume error: %v", err)
	}

	if got := store.levels[200].String(); got != "-0.5" {
		t.Fatalf("stock level = %s, want -0.5", got)
	}
}

func TestConsume_NoRecipeNoWaste(t *testing.T) {
	store := newStubStore()
	store.items = []model.OrderItem{
		{ID: 1, ItemID: 10, Quantity: 3},
	}

	engine := NewEngine(store)
	if err := engine.Consume(context.Background(), 1, ConsumeReference(1)); err != nil {
		t.Fatalf("Consume error: %v", err)
	}

	if len(store.transactions) != 0 {
		t.Fatalf("transactions = %d, want 0", len(store.transactions))
	}
}

func TestConsume_AggregatesPerProduct(t *testing.T) {
	store := newStubStore()
	store.items = []model.OrderItem{
		{ID: 1, ItemID: 10, Quantity: 1},
		{ID: 2, ItemID: 11, Quantity: 2},
	}
	store.itemRecipes[10] = &model.Recipe{
		ID: 1,
		Lines: []model.RecipeLine{
			{ProductID: 100, Quantity: money.MustParse("1")},
		},
	}
	store.itemRecipes[11] = &model.Recipe{
		ID: 2,
		Lines: []model.RecipeLine{
			{ProductID: 100, Quantity: money.MustParse("0.25")},
		},
	}

	engine := NewEngine(store)
	if err := engine.Consume(context.Background(), 1, ConsumeReference(1)); err != nil {
		t.Fatalf("Consume error: %v", err)
	}

	if len(store.transactions) != 1 {
		t.Fatalf("transactions = %d, want 1 aggregated entry", len(store.transactions))
	}
	if got := store.transactions[0].Quantity.String(); got != "-1.5" {
		t.Fatalf("ledger quantity = %s, want -1.5", got)
	}
}

func TestConsume_VoidedLinesSkipped(t *testing.T) {
	store := newStubStore()
	store.items = []model.OrderItem{
		{ID: 1, ItemID: 10, Quantity: 1, Voided: true},
	}
	store.itemRecipes[10] = &model.Recipe{
		ID: 1,
		Lines: []model.RecipeLine{
			{ProductID: 100, Quantity: money.MustParse("1")},
		},
	}

	engine := NewEngine(store)
	if err := engine.Consume(context.Background(), 1, ConsumeReference(1)); err != nil {
		t.Fatalf("Consume error: %v", err)
	}

	if len(store.transactions) != 0 {
		t.Fatalf("transactions = %d, want 0", len(store.transactions))
	}
}

func TestReverse_RestoresConsumedStock(t *testing.T) {
	store := newStubStore()
	store.items = []model.OrderItem{
		{ID: 1, ItemID: 10, Quantity: 2},
	}
	store.itemRecipes[10] = &model.Recipe{
		ID: 1,
		Lines: []model.RecipeLine{
			{ProductID: 100, Quantity: money.MustParse("1")},
		},
	}

	engine := NewEngine(store)
	if err := engine.Consume(context.Background(), 1, ConsumeReference(1)); err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if err := engine.Reverse(context.Background(), 1); err != nil {
		t.Fatalf("Reverse error: %v", err)
	}

	if got := store.levels[100].String(); got != "0" {
		t.Fatalf("stock level = %s, want 0 after reversal", got)
	}

	// Повторный реверс ничего не добавляет.
	if err := engine.Reverse(context.Background(), 1); err != nil {
		t.Fatalf("second Reverse error: %v", err)
	}
	if len(store.transactions) != 2 {
		t.Fatalf("transactions = %d, want 2", len(store.transactions))
	}
}

func TestReverse_NoConsumptionNoOp(t *testing.T) {
	store := newStubStore()

	engine := NewEngine(store)
	if err := engine.Reverse(context.Background(), 42); err != nil {
		t.Fatalf("Reverse error: %v", err)
	}
	if len(store.transactions) != 0 {
		t.Fatalf("transactions = %d, want 0", len(store.transactions))
	}
}
