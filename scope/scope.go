// Package scope carries the tenant account a piece of work runs under.
//
// The account travels in the context rather than in a process-wide variable,
// so a background job iteration scopes itself by deriving a child context and
// the scope disappears when that context goes out of use.
package scope

import "context"

type accountKey struct{}

// WithAccount returns ctx scoped to account. An empty account is global scope.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountKey{}, account)
}

// Account returns the account ctx is scoped to, or "" for global scope.
func Account(ctx context.Context) string {
	if v, ok := ctx.Value(accountKey{}).(string); ok {
		return v
	}
	return ""
}

// Visible reports whether an object owned by owner may be read under ctx.
// Global objects (owner "") are visible everywhere; scoped objects only to
// their own account.
func Visible(ctx context.Context, owner string) bool {
	return owner == "" || owner == Account(ctx)
}

// Overlaps reports whether two owners can see each other: it is false only
// when both are set and differ.
func Overlaps(a, b string) bool {
	return a == "" || b == "" || a == b
}
