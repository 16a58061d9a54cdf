package compliance

import "context"

// AllowlistRules is a BaseRuleProvider that rejects any (chain, token)
// pair not present in its allow-list, and honors a tenant-scoped deny
// override when set. It implements the "unsupported token on a tenant's
// allow-list" case the BaseRuleProvider doc comment describes.
type AllowlistRules struct {
	// AllowedTokensByChain maps chain -> set of allowed token symbols.
	// A chain absent from the map allows any token.
	AllowedTokensByChain map[string]map[string]bool

	// DeniedTenants blocks every payment for a tenant ID outright,
	// independent of token/chain (e.g. a tenant under investigation).
	DeniedTenants map[string]bool
}

// NewAllowlistRules builds an AllowlistRules from a simpler chain ->
// token-list shape, as loaded from configuration.
func NewAllowlistRules(allowedTokensByChain map[string][]string) *AllowlistRules {
	sets := make(map[string]map[string]bool, len(allowedTokensByChain))
	for chain, tokens := range allowedTokensByChain {
		set := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			set[t] = true
		}
		sets[chain] = set
	}
	return &AllowlistRules{AllowedTokensByChain: sets, DeniedTenants: map[string]bool{}}
}

func (r *AllowlistRules) Check(ctx context.Context, in PreflightInput) (bool, string, error) {
	if r.DeniedTenants[in.TenantID] {
		return false, "tenant_denied", nil
	}
	allowed, ok := r.AllowedTokensByChain[in.Chain]
	if !ok || len(allowed) == 0 {
		return true, "", nil
	}
	if !allowed[in.Token] {
		return false, "token_not_allowed", nil
	}
	return true, "", nil
}
