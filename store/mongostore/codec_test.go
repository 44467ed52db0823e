package mongostore

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

type amountDoc struct {
	Amount decimal.Decimal `bson:"amount"`
}

func TestDecimalEncodesAsDecimal128(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry()

	raw, err := bson.MarshalWithRegistry(reg, amountDoc{Amount: decimal.RequireFromString("955.80")})
	require.NoError(err)
	require.Equal(bsontype.Decimal128, bson.Raw(raw).Lookup("amount").Type)

	var out amountDoc
	require.NoError(bson.UnmarshalWithRegistry(reg, raw, &out))
	require.True(out.Amount.Equal(decimal.RequireFromString("955.8")), out.Amount.String())
}

func TestDecimalDecodesLegacyForms(t *testing.T) {
	reg := NewRegistry()
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"double", 12.5, "12.5"},
		{"int32", int32(7), "7"},
		{"int64", int64(9000000000), "9000000000"},
		{"string", "300.25", "300.25"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require := require.New(t)
			raw, err := bson.Marshal(bson.M{"amount": tc.in})
			require.NoError(err)

			var out amountDoc
			require.NoError(bson.UnmarshalWithRegistry(reg, raw, &out))
			require.True(out.Amount.Equal(decimal.RequireFromString(tc.want)), out.Amount.String())
		})
	}
}

func TestDecimalRejectsGarbage(t *testing.T) {
	require := require.New(t)
	raw, err := bson.Marshal(bson.M{"amount": "not-a-number"})
	require.NoError(err)

	var out amountDoc
	require.Error(bson.UnmarshalWithRegistry(NewRegistry(), raw, &out))
}

func TestProofClauses(t *testing.T) {
	require := require.New(t)

	clauses := proofClauses([]models.ProofStatus{"", models.ProofRejected})
	require.Len(clauses, 2)
	require.Equal(bson.M{"proof": nil}, clauses[0])
	require.Equal(bson.M{"proof.status": bson.M{"$in": []models.ProofStatus{models.ProofRejected}}}, clauses[1])

	require.Empty(proofClauses([]models.ProofStatus{}))
}

func TestStatusStrings(t *testing.T) {
	require := require.New(t)
	got := statusStrings([]models.AdStatus{models.AdStatusApproved, models.AdStatusModified})
	require.Equal([]string{"approved", "modified"}, got)
}
