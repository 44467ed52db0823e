package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store"
)

var at = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func seedAd(t *testing.T, s *Store, required int, reporters ...models.User) models.Advertisement {
	t.Helper()
	ctx := context.Background()
	ad := models.Advertisement{RequiredReporter: required, Status: models.AdStatusApproved}
	require.NoError(t, s.CreateAd(ctx, &ad))
	_, err := s.EnsurePending(ctx, models.KindAd, ad.ID, "", reporters, at)
	require.NoError(t, err)
	return ad
}

func users(n int) []models.User {
	out := make([]models.User, n)
	for i := range out {
		out[i] = models.User{ID: primitive.NewObjectID(), Role: models.RoleReporter, Verified: true}
	}
	return out
}

func TestClaimSlotRespectsQuota(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New()
	rs := users(3)
	ad := seedAd(t, s, 2, rs...)

	res, err := s.ClaimSlot(ctx, store.SlotClaim{Kind: models.KindAd, EntityID: ad.ID, ReporterID: rs[0].ID, At: at})
	require.NoError(err)
	require.False(res.Filled)
	require.Equal(models.AssignmentAccepted, res.Assignment.Status)

	_, err = s.ClaimSlot(ctx, store.SlotClaim{Kind: models.KindAd, EntityID: ad.ID, ReporterID: rs[0].ID, At: at})
	require.ErrorIs(err, store.ErrConflict)

	res, err = s.ClaimSlot(ctx, store.SlotClaim{Kind: models.KindAd, EntityID: ad.ID, ReporterID: rs[1].ID, At: at})
	require.NoError(err)
	require.True(res.Filled)
	require.Equal(2, res.Count)

	_, err = s.ClaimSlot(ctx, store.SlotClaim{Kind: models.KindAd, EntityID: ad.ID, ReporterID: rs[2].ID, At: at})
	require.ErrorIs(err, store.ErrCapacityReached)

	got, err := s.GetAd(ctx, ad.ID)
	require.NoError(err)
	require.Equal(models.AdStatusRunning, got.Status)
	require.Equal(2, got.AcceptReporterCount)

	_, err = s.RemoveAssignment(ctx, models.KindAd, ad.ID, rs[0].ID)
	require.NoError(err)
	got, err = s.GetAd(ctx, ad.ID)
	require.NoError(err)
	require.Equal(models.AdStatusApproved, got.Status)
	require.Equal(1, got.AcceptReporterCount)
}

func TestTransitionAssignmentCompareAndSwap(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New()
	rs := users(1)
	ad := seedAd(t, s, 1, rs...)

	note := "busy"
	a, err := s.TransitionAssignment(ctx, store.Transition{
		Kind:       models.KindAd,
		EntityID:   ad.ID,
		ReporterID: rs[0].ID,
		From:       []models.AssignmentStatus{models.AssignmentPending},
		Patch:      store.AssignmentPatch{Status: models.AssignmentRejected, RejectNote: &note},
		At:         at,
	})
	require.NoError(err)
	require.Equal("busy", a.RejectNote)

	_, err = s.TransitionAssignment(ctx, store.Transition{
		Kind:       models.KindAd,
		EntityID:   ad.ID,
		ReporterID: rs[0].ID,
		From:       []models.AssignmentStatus{models.AssignmentPending},
		Patch:      store.AssignmentPatch{Status: models.AssignmentAccepted},
		At:         at,
	})
	require.ErrorIs(err, store.ErrConflict)

	n, err := s.ReopenRejected(ctx, models.KindAd, ad.ID, []primitive.ObjectID{rs[0].ID}, at)
	require.NoError(err)
	require.Equal(1, n)
	a, err = s.GetAssignment(ctx, models.KindAd, ad.ID, rs[0].ID)
	require.NoError(err)
	require.Equal(models.AssignmentPending, a.Status)
	require.Empty(a.RejectNote)
}

func TestWalletAtomicity(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New()
	id := primitive.NewObjectID()

	credit := models.WalletTransaction{ID: "1", Type: models.TransactionCredit, Amount: decimal.NewFromInt(100), Status: models.TransactionStatusSuccess, CorrelationID: "c1", CreatedAt: at}
	_, err := s.Credit(ctx, id, models.RoleReporter, credit)
	require.NoError(err)
	_, err = s.Credit(ctx, id, models.RoleReporter, credit)
	require.ErrorIs(err, store.ErrDuplicateTransaction)

	debit := models.WalletTransaction{ID: "2", Type: models.TransactionDebit, Amount: decimal.NewFromInt(150), Status: models.TransactionStatusSuccess, CorrelationID: "d1", CreatedAt: at}
	_, err = s.Debit(ctx, id, models.RoleReporter, debit)
	require.ErrorIs(err, store.ErrInsufficientBalance)

	w, err := s.GetWallet(ctx, id, models.RoleReporter)
	require.NoError(err)
	require.True(w.Balance.Equal(decimal.NewFromInt(100)))
	require.Len(w.Transactions, 1)
	require.True(w.Balance.Equal(w.LedgerSum()))

	_, err = s.Debit(ctx, primitive.NewObjectID(), models.RoleReporter, debit)
	require.ErrorIs(err, store.ErrInsufficientBalance)
}

func TestRedeemCouponHonoursLimit(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New()

	c := models.Coupon{
		Code:       "once",
		Type:       models.CouponTypeFlat,
		Discount:   decimal.NewFromInt(50),
		Status:     models.CouponStatusActive,
		ValidFrom:  at.Add(-time.Hour),
		ValidUntil: at.Add(time.Hour),
		UsageLimit: 1,
	}
	require.NoError(s.CreateCoupon(ctx, &c))
	require.ErrorIs(s.CreateCoupon(ctx, &models.Coupon{Code: "ONCE"}), store.ErrDuplicate)

	redeemed, err := s.RedeemCoupon(ctx, " Once ", at)
	require.NoError(err)
	require.Equal(1, redeemed.UsedCount)
	_, err = s.RedeemCoupon(ctx, "ONCE", at)
	require.ErrorIs(err, store.ErrConflict)

	require.NoError(s.ReleaseCoupon(ctx, "ONCE"))
	_, err = s.RedeemCoupon(ctx, "ONCE", at)
	require.NoError(err)
}

func TestRecordPaymentIsUnique(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New()
	user := primitive.NewObjectID()

	require.NoError(s.RecordPayment(ctx, &models.PaymentHistory{UserID: user, PaymentID: "pay_1", Amount: decimal.NewFromInt(10), CreatedAt: at}))
	require.ErrorIs(s.RecordPayment(ctx, &models.PaymentHistory{UserID: user, PaymentID: "pay_1"}), store.ErrDuplicate)

	list, err := s.ListPayments(ctx, user)
	require.NoError(err)
	require.Len(list, 1)

	require.NoError(s.DeletePayment(ctx, "pay_1"))
	require.ErrorIs(s.DeletePayment(ctx, "pay_1"), store.ErrNotFound)
}

func TestReleaseSlotRestoresModifiedConference(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New()
	rs := users(2)

	conf := models.PaidConference{NumberOfReporters: 2}
	conf.ConferenceID = "PAID10001"
	conf.Status = models.ConferenceStatusModified
	require.NoError(s.CreatePaidConference(ctx, &conf))
	_, err := s.EnsurePending(ctx, models.KindPaidConference, conf.ID, "PAID10001", rs, at)
	require.NoError(err)

	for _, r := range rs {
		_, err := s.ClaimSlot(ctx, store.SlotClaim{Kind: models.KindPaidConference, EntityID: conf.ID, ReporterID: r.ID, At: at})
		require.NoError(err)
	}
	got, err := s.GetPaidConference(ctx, conf.ID)
	require.NoError(err)
	require.Equal(models.ConferenceStatusRunning, got.Status)

	_, err = s.RemoveAssignment(ctx, models.KindPaidConference, conf.ID, rs[1].ID)
	require.NoError(err)
	got, err = s.GetPaidConference(ctx, conf.ID)
	require.NoError(err)
	require.Equal(models.ConferenceStatusModified, got.Status)
	require.Equal(1, got.AcceptedCount)
}
