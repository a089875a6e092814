package tooldef

import "strings"

// ScopeSet returns the scopes of perms as a set. Scopes are trimmed of
// surrounding whitespace; empty scopes are dropped.
func ScopeSet(perms []Permission) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		scope := strings.TrimSpace(p.Scope)
		if scope == "" {
			continue
		}
		set[scope] = struct{}{}
	}
	return set
}

// DiffScopes computes the permission drift between a stored approval and an
// incoming definition, compared by scope. added holds permissions present in
// incoming but absent from stored; removed holds permissions present in
// stored but absent from incoming. Declared order is preserved in both.
func DiffScopes(stored, incoming []Permission) (added, removed []Permission) {
	storedSet := ScopeSet(stored)
	incomingSet := ScopeSet(incoming)

	for _, p := range incoming {
		scope := strings.TrimSpace(p.Scope)
		if scope == "" {
			continue
		}
		if _, ok := storedSet[scope]; !ok {
			added = append(added, p)
			storedSet[scope] = struct{}{} // dedup repeated scopes in incoming
		}
	}
	for _, p := range stored {
		scope := strings.TrimSpace(p.Scope)
		if scope == "" {
			continue
		}
		if _, ok := incomingSet[scope]; !ok {
			removed = append(removed, p)
			incomingSet[scope] = struct{}{}
		}
	}
	return added, removed
}

// ScopesSatisfied reports whether every scope in required is present in
// granted, returning the missing scopes when not.
func ScopesSatisfied(required, granted []string) (missing []string) {
	grantedSet := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		grantedSet[strings.TrimSpace(s)] = struct{}{}
	}
	for _, s := range required {
		scope := strings.TrimSpace(s)
		if scope == "" {
			continue
		}
		if _, ok := grantedSet[scope]; !ok {
			missing = append(missing, scope)
		}
	}
	return missing
}
