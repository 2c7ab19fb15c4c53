// Package middleware содержит HTTP middleware сервиса ресторанных заказов.
package middleware

import (
	"context"
	"net/http"
	"strconv"
)

type contextKey string

const (
	scopeKey contextKey = "tenantScope"
	actorKey contextKey = "actor"
)

const (
	brandHeader  = "X-Brand-ID"
	branchHeader = "X-Branch-ID"
	actorHeader  = "X-Actor"
)

// Scope — область арендатора запроса. Каждый запрос к API работает строго в
// рамках одного бренда и филиала.
type Scope struct {
	BrandID  int64
	BranchID int64
}

// Tenant извлекает заголовки бренда и филиала и кладёт область арендатора в
// контекст запроса. Запросы без корректных заголовков отклоняются.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		brandID, err := strconv.ParseInt(r.Header.Get(brandHeader), 10, 64)
		if err != nil || brandID <= 0 {
			http.Error(w, "missing or invalid "+brandHeader+" header", http.StatusBadRequest)
			return
		}

		branchID, err := strconv.ParseInt(r.Header.Get(branchHeader), 10, 64)
		if err != nil || branchID <= 0 {
			http.Error(w, "missing or invalid "+branchHeader+" header", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), scopeKey, Scope{BrandID: brandID, BranchID: branchID})
		if actor := r.Header.Get(actorHeader); actor != "" {
			ctx = context.WithValue(ctx, actorKey, actor)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetScopeFromContext извлекает область арендатора из контекста запроса.
func GetScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeKey).(Scope)
	return scope, ok
}

// GetActorFromContext извлекает идентификатор действующего лица из контекста
// запроса. Пустая строка означает, что заголовок не был передан.
func GetActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}
