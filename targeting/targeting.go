// Package targeting resolves which reporters are offered an ad or conference.
package targeting

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

// Rule names the targeting strategy that produced a result.
type Rule string

const (
	RuleExplicit  Rule = "explicit"
	RuleAllStates Rule = "all_states"
	RuleStates    Rule = "states"
	RuleCities    Rule = "cities"
	RulePincode   Rule = "pincode"
	RuleDefault   Rule = "default_location"
	RuleUnion     Rule = "modified_union"
)

type Request struct {
	Targeting models.Targeting
	// Origin is the location the entity was submitted with.
	Origin   models.Location
	Excluded []primitive.ObjectID
	// Role restricts the pool to reporters or influencers.
	Role string
	// Modified selects union semantics instead of priority override.
	Modified bool
}

type Result struct {
	Rule      Rule
	Reporters []models.User
}

// IDs returns the resolved reporter ids in pool order.
func (r Result) IDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(r.Reporters))
	for _, u := range r.Reporters {
		ids = append(ids, u.ID)
	}
	return ids
}

// Resolve applies the targeting rules to pool. The first rule whose
// configuration is present wins, except for modified entities which get the
// union of the default location match and the configured rule. Excluded
// reporters never appear in the result.
func Resolve(req Request, pool []models.User) Result {
	eligible := make([]models.User, 0, len(pool))
	excluded := idSet(req.Excluded)
	for _, u := range pool {
		if !u.Verified || !models.IsWorkerRole(u.Role) {
			continue
		}
		if req.Role != "" && u.Role != req.Role {
			continue
		}
		if _, ok := excluded[u.ID]; ok {
			continue
		}
		eligible = append(eligible, u)
	}

	if !req.Modified {
		rule, match := pick(req.Targeting, req.Origin)
		return Result{Rule: rule, Reporters: filter(eligible, match)}
	}

	def := defaultMatch(req.Origin)
	if req.Targeting.IsZero() {
		return Result{Rule: RuleDefault, Reporters: filter(eligible, def)}
	}
	_, configured := pick(req.Targeting, req.Origin)
	return Result{
		Rule: RuleUnion,
		Reporters: filter(eligible, func(u models.User) bool {
			return def(u) || configured(u)
		}),
	}
}

type matcher func(models.User) bool

func pick(t models.Targeting, origin models.Location) (Rule, matcher) {
	switch {
	case len(t.ReporterIDs) > 0:
		ids := idSet(t.ReporterIDs)
		return RuleExplicit, func(u models.User) bool {
			_, ok := ids[u.ID]
			return ok
		}
	case t.AllStates:
		return RuleAllStates, func(models.User) bool { return true }
	case len(t.AdminSelectState) > 0:
		states := stringSet(t.AdminSelectState)
		cities := stringSet(t.AdminSelectCities)
		return RuleStates, func(u models.User) bool {
			if _, ok := states[fold(u.State)]; !ok {
				return false
			}
			if len(cities) == 0 {
				return true
			}
			_, ok := cities[fold(u.City)]
			return ok
		}
	case len(t.AdminSelectCities) > 0:
		cities := stringSet(t.AdminSelectCities)
		return RuleCities, func(u models.User) bool {
			_, ok := cities[fold(u.City)]
			return ok
		}
	case strings.TrimSpace(t.AdminSelectPincode) != "":
		// Reporters carry no pincode, so pincode targeting matches nobody.
		return RulePincode, func(models.User) bool { return false }
	default:
		return RuleDefault, defaultMatch(origin)
	}
}

func defaultMatch(origin models.Location) matcher {
	state, city := fold(origin.State), fold(origin.City)
	return func(u models.User) bool {
		return state != "" && city != "" && fold(u.State) == state && fold(u.City) == city
	}
}

func filter(pool []models.User, match matcher) []models.User {
	out := make([]models.User, 0)
	for _, u := range pool {
		if match(u) {
			out = append(out, u)
		}
	}
	return out
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if f := fold(v); f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func idSet(ids []primitive.ObjectID) map[primitive.ObjectID]struct{} {
	set := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
