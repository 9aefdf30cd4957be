package ratelimit

// Scope names the budget a counter belongs to
type Scope string

const (
	// ScopeShop is the outbound budget shared by every worker calling one shop
	ScopeShop Scope = "shop"

	// ScopeOrganization is the inbound API budget of one tenant
	ScopeOrganization Scope = "org"
)

// DefaultWindowSeconds is the counter window used by every scope
const DefaultWindowSeconds = 60

// Key builds the Redis counter key for a scope and identifier
func Key(scope Scope, id string) string {
	return "rate_limit:" + string(scope) + ":" + id
}
