package services

import (
	"context"

	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/store"
)

// AccessResolver computes the set of memories an app may see from its
// allow/deny rules.
type AccessResolver struct {
	store store.Store
}

func NewAccessResolver(s store.Store) *AccessResolver {
	return &AccessResolver{store: s}
}

// AccessibleMemoryIDs resolves the app's visibility scope. Precedence:
//
//  1. no rules at all: unrestricted
//  2. a wildcard allow: unrestricted, even when specific denies exist
//  3. a wildcard deny: nothing
//  4. otherwise: specifically allowed ids minus specifically denied ids
//
// The wildcard-allow-beats-specific-deny behavior is deliberate; existing
// rule sets depend on it.
func (a *AccessResolver) AccessibleMemoryIDs(ctx context.Context, appID string) (model.AccessScope, error) {
	rules, err := a.store.AccessRules().ListForSubject(ctx, model.SubjectApp, appID, model.ObjectMemory)
	if err != nil {
		return model.EmptyScope(), err
	}
	if len(rules) == 0 {
		return model.UnrestrictedScope(), nil
	}

	allowed := map[string]struct{}{}
	denied := map[string]struct{}{}
	var denyAll bool
	for _, r := range rules {
		switch r.Effect {
		case model.EffectAllow:
			if r.Wildcard() {
				return model.UnrestrictedScope(), nil
			}
			allowed[*r.ObjectID] = struct{}{}
		case model.EffectDeny:
			if r.Wildcard() {
				denyAll = true
				continue
			}
			denied[*r.ObjectID] = struct{}{}
		}
	}
	if denyAll {
		return model.EmptyScope(), nil
	}

	scope := model.AccessScope{IDs: make(map[string]struct{}, len(allowed))}
	for id := range allowed {
		if _, d := denied[id]; !d {
			scope.IDs[id] = struct{}{}
		}
	}
	return scope, nil
}
