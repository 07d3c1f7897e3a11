package policy

import "strings"

// Decision is the outcome of resolving a tool against a Policy, along with
// the reason it was reached, useful for audit logging.
type Decision struct {
	Allowed bool
	Reason  string
}

// Resolver answers allow/deny questions for a role's Policy against the
// global tool catalog.
type Resolver struct{}

// NewResolver returns a ready Resolver. It carries no state: policies are
// passed explicitly to each call so a Resolver can be shared across roles.
func NewResolver() *Resolver {
	return &Resolver{}
}

// IsAllowed reports whether toolName is permitted under policy. Deny always
// wins over allow; an empty Allow list means nothing is permitted.
func (r *Resolver) IsAllowed(policy *Policy, toolName string) bool {
	return r.Decide(policy, toolName).Allowed
}

// Decide resolves toolName against policy and explains why.
func (r *Resolver) Decide(policy *Policy, toolName string) Decision {
	if policy == nil {
		return Decision{Allowed: false, Reason: "no policy configured"}
	}
	name := NormalizeTool(toolName)

	for _, pattern := range ExpandGroups(policy.Deny) {
		if matchToolPattern(NormalizeTool(pattern), name) {
			return Decision{Allowed: false, Reason: "denied by pattern " + pattern}
		}
	}
	for _, pattern := range ExpandGroups(policy.Allow) {
		if matchToolPattern(NormalizeTool(pattern), name) {
			return Decision{Allowed: true, Reason: "allowed by pattern " + pattern}
		}
	}
	return Decision{Allowed: false, Reason: "not present in allow list"}
}

// FilterAllowed projects tools down to the subset policy permits.
func (r *Resolver) FilterAllowed(policy *Policy, tools []string) []string {
	var out []string
	for _, t := range tools {
		if r.IsAllowed(policy, t) {
			out = append(out, t)
		}
	}
	return out
}

// matchToolPattern reports whether pattern matches toolName. Supported
// forms: "*" (universal), "prefix.*" (namespace wildcard), and exact match.
func matchToolPattern(pattern, toolName string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(toolName, prefix)
	}
	return pattern == toolName
}
