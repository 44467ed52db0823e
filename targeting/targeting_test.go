package targeting

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

func reporter(state, city string) models.User {
	return models.User{
		ID:       primitive.NewObjectID(),
		Role:     models.RoleReporter,
		Verified: true,
		State:    state,
		City:     city,
	}
}

func TestResolveExplicitListWinsOverAllStates(t *testing.T) {
	require := require.New(t)

	a := reporter("Punjab", "Ludhiana")
	b := reporter("Haryana", "Karnal")
	c := reporter("Punjab", "Amritsar")
	pool := []models.User{a, b, c}

	res := Resolve(Request{
		Targeting: models.Targeting{AllStates: true, ReporterIDs: []primitive.ObjectID{a.ID, b.ID}},
		Origin:    models.Location{State: "Punjab", City: "Amritsar"},
		Role:      models.RoleReporter,
	}, pool)

	require.Equal(RuleExplicit, res.Rule)
	require.ElementsMatch([]primitive.ObjectID{a.ID, b.ID}, res.IDs())
}

func TestResolveModifiedUnionsDefaultLocation(t *testing.T) {
	require := require.New(t)

	a := reporter("Punjab", "Ludhiana")
	b := reporter("Haryana", "Karnal")
	c := reporter("Punjab", "Amritsar")
	d := reporter("Delhi", "Delhi")

	res := Resolve(Request{
		Targeting: models.Targeting{AllStates: true, ReporterIDs: []primitive.ObjectID{a.ID, b.ID}},
		Origin:    models.Location{State: "Punjab", City: "Amritsar"},
		Role:      models.RoleReporter,
		Modified:  true,
	}, []models.User{a, b, c, d})

	require.Equal(RuleUnion, res.Rule)
	require.ElementsMatch([]primitive.ObjectID{a.ID, b.ID, c.ID}, res.IDs())
}

func TestResolvePriority(t *testing.T) {
	ludhiana := reporter("Punjab", "Ludhiana")
	amritsar := reporter("Punjab", "Amritsar")
	karnal := reporter("Haryana", "Karnal")
	pool := []models.User{ludhiana, amritsar, karnal}
	origin := models.Location{State: "Haryana", City: "Karnal"}

	tests := []struct {
		name      string
		targeting models.Targeting
		rule      Rule
		want      []primitive.ObjectID
	}{
		{"all states", models.Targeting{AllStates: true, AdminSelectState: []string{"Punjab"}}, RuleAllStates, []primitive.ObjectID{ludhiana.ID, amritsar.ID, karnal.ID}},
		{"states only", models.Targeting{AdminSelectState: []string{"punjab"}}, RuleStates, []primitive.ObjectID{ludhiana.ID, amritsar.ID}},
		{"states and cities", models.Targeting{AdminSelectState: []string{"Punjab"}, AdminSelectCities: []string{"Amritsar"}}, RuleStates, []primitive.ObjectID{amritsar.ID}},
		{"cities only", models.Targeting{AdminSelectCities: []string{"Karnal", "Ludhiana"}}, RuleCities, []primitive.ObjectID{ludhiana.ID, karnal.ID}},
		{"pincode never matches", models.Targeting{AdminSelectPincode: "141001"}, RulePincode, []primitive.ObjectID{}},
		{"default location", models.Targeting{}, RuleDefault, []primitive.ObjectID{karnal.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(Request{Targeting: tt.targeting, Origin: origin, Role: models.RoleReporter}, pool)
			require.Equal(t, tt.rule, res.Rule)
			require.ElementsMatch(t, tt.want, res.IDs())
		})
	}
}

func TestResolveExclusionAndPoolFilter(t *testing.T) {
	require := require.New(t)

	a := reporter("Punjab", "Ludhiana")
	b := reporter("Punjab", "Ludhiana")
	unverified := reporter("Punjab", "Ludhiana")
	unverified.Verified = false
	influencer := reporter("Punjab", "Ludhiana")
	influencer.Role = models.RoleInfluencer

	res := Resolve(Request{
		Targeting: models.Targeting{ReporterIDs: []primitive.ObjectID{a.ID, b.ID, unverified.ID, influencer.ID}},
		Excluded:  []primitive.ObjectID{b.ID},
		Role:      models.RoleReporter,
	}, []models.User{a, b, unverified, influencer})

	require.Equal([]primitive.ObjectID{a.ID}, res.IDs())

	res = Resolve(Request{
		Targeting: models.Targeting{AllStates: true},
		Excluded:  []primitive.ObjectID{b.ID},
		Role:      models.RoleReporter,
		Modified:  true,
	}, []models.User{a, b})
	require.Equal([]primitive.ObjectID{a.ID}, res.IDs())
}
