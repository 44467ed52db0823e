package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

func TestSubmitFreeConferenceValidation(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")

	in := conferenceInput()
	in.Purpose = "too short"
	_, err := f.svc.SubmitFreeConference(ctx, press, in)
	require.ErrorIs(err, ErrValidation)

	conf, err := f.svc.SubmitFreeConference(ctx, press, conferenceInput())
	require.NoError(err)
	require.True(strings.HasPrefix(conf.ConferenceID, models.FreeConferencePrefix))
	require.Len(conf.ConferenceID, len(models.FreeConferencePrefix)+5)
	require.Equal(models.ConferenceStatusPending, conf.Status)
}

func TestConferenceCodeRetriesOnCollision(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")

	codes := []string{"FREE00001", "FREE00001", "FREE00002"}
	f.svc.codes = func(string) string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	first, err := f.svc.SubmitFreeConference(ctx, press, conferenceInput())
	require.NoError(err)
	second, err := f.svc.SubmitFreeConference(ctx, press, conferenceInput())
	require.NoError(err)
	require.Equal("FREE00001", first.ConferenceID)
	require.Equal("FREE00002", second.ConferenceID)

	f.svc.codes = func(string) string { return "FREE00001" }
	_, err = f.svc.SubmitFreeConference(ctx, press, conferenceInput())
	require.ErrorIs(err, ErrConflict)
}

func TestFreeConferenceLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")
	reporters := f.reporters(t, 2)
	conf, err := f.svc.SubmitFreeConference(ctx, press, conferenceInput())
	require.NoError(err)

	_, err = f.svc.ReviewFreeConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionApprove})
	require.ErrorIs(err, ErrValidation)
	approved, err := f.svc.ReviewFreeConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionApprove, Note: "approved"})
	require.NoError(err)
	require.Equal(models.ConferenceStatusApproved, approved.Status)
	require.Len(approved.NotifiedReporters, 2)

	a, err := f.svc.AcceptConference(ctx, reporters[0], models.KindFreeConference, conf.ID)
	require.NoError(err)
	require.Equal(models.AssignmentAccepted, a.Status)
	require.NotNil(a.Snapshot)
	require.Equal("Flood relief briefing", a.Snapshot.Topic)

	_, err = f.svc.RejectConference(ctx, reporters[1], models.KindFreeConference, conf.ID, "busy")
	require.NoError(err)
	_, err = f.svc.AcceptConference(ctx, reporters[1], models.KindFreeConference, conf.ID)
	require.ErrorIs(err, ErrAlreadyResponded)

	_, err = f.svc.CompleteFreeConference(ctx, f.admin, conf.ID)
	require.ErrorIs(err, ErrConflict)

	_, err = f.svc.SubmitConferenceProof(ctx, reporters[0], models.KindFreeConference, conf.ID, proofInput())
	require.NoError(err)
	a, err = f.svc.ReviewFreeConferenceProof(ctx, f.admin, conf.ID, reporters[0].ID, false, "wrong event")
	require.NoError(err)
	require.Equal(models.ProofRejected, a.ProofStatus())
	require.Equal(models.AssignmentAccepted, a.Status)

	_, err = f.svc.SubmitConferenceProof(ctx, reporters[0], models.KindFreeConference, conf.ID, proofInput())
	require.NoError(err)
	a, err = f.svc.ReviewFreeConferenceProof(ctx, f.admin, conf.ID, reporters[0].ID, true, "")
	require.NoError(err)
	require.Equal(models.AssignmentCompleted, a.Status)

	detail, err := f.svc.GetFreeConference(ctx, press, conf.ID)
	require.NoError(err)
	require.Equal(models.ConferenceStatusCompleted, detail.Conference.Status)
	require.Equal(CompletionStatus{Targeted: 2, Responded: 2, Accepted: 0, Completed: 1}, detail.Progress)

	other := f.user(t, models.RolePress, "Punjab", "Ludhiana")
	_, err = f.svc.GetFreeConference(ctx, other, conf.ID)
	require.ErrorIs(err, ErrForbidden)
}

func TestConferenceTargetingModifiedUnion(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")
	a := f.user(t, models.RoleReporter, "Delhi", "Delhi")
	b := f.user(t, models.RoleReporter, "Kerala", "Kochi")
	local := f.user(t, models.RoleReporter, "Punjab", "Ludhiana")
	conf, err := f.svc.SubmitFreeConference(ctx, press, conferenceInput())
	require.NoError(err)

	tgt := &models.Targeting{AllStates: true, ReporterIDs: []primitive.ObjectID{a.ID, b.ID}}
	approved, err := f.svc.ReviewFreeConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionApprove, Note: "ok", Targeting: tgt})
	require.NoError(err)
	require.ElementsMatch([]primitive.ObjectID{a.ID, b.ID}, approved.NotifiedReporters)

	modified, err := f.svc.ReviewFreeConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionModify, Note: "add locals", Targeting: tgt})
	require.NoError(err)
	require.Equal(models.ConferenceStatusModified, modified.Status)
	require.ElementsMatch([]primitive.ObjectID{a.ID, b.ID, local.ID}, modified.NotifiedReporters)

	_, err = f.svc.AcceptConference(ctx, local, models.KindFreeConference, conf.ID)
	require.NoError(err)
}

func submitPaid(t *testing.T, f *fixture, press Actor, n int) models.PaidConference {
	t.Helper()
	conf, err := f.svc.SubmitPaidConference(context.Background(), press, PaidConferenceInput{
		ConferenceInput:   conferenceInput(),
		NumberOfReporters: n,
		PaymentMethod:     models.PaymentMethodWallet,
	})
	require.NoError(t, err)
	return conf
}

func TestPaidConferenceConcurrentAccept(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")
	f.fund(t, press, 900)
	reporters := f.reporters(t, 10)
	conf := submitPaid(t, f, press, 3)
	_, err := f.svc.ReviewPaidConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionApprove, Note: "ok"})
	require.NoError(err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		errs     []error
	)
	for _, r := range reporters {
		wg.Add(1)
		go func(r Actor) {
			defer wg.Done()
			_, err := f.svc.AcceptPaidConference(ctx, r, conf.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			accepted++
		}(r)
	}
	wg.Wait()

	require.Equal(3, accepted)
	require.Len(errs, 7)
	for _, err := range errs {
		require.ErrorIs(err, ErrConflict)
	}

	detail, err := f.svc.GetPaidConference(ctx, f.admin, conf.ID)
	require.NoError(err)
	require.Equal(models.ConferenceStatusRunning, detail.Conference.Status)
	require.Equal(3, detail.Conference.AcceptedCount)
	require.Equal(3, detail.Progress.Accepted)
}

func TestPaidConferenceShortfallRefund(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")
	f.fund(t, press, 900)
	reporters := f.reporters(t, 3)
	conf := submitPaid(t, f, press, 3)
	require.True(strings.HasPrefix(conf.ConferenceID, models.PaidConferencePrefix))
	requireDecimal(t, "900", conf.PaymentAmount)

	_, err := f.svc.ApprovePaidConferenceProof(ctx, f.admin, conf.ID, reporters[0].ID, "tok-early")
	require.ErrorIs(err, ErrInvalidTransition)

	approved, err := f.svc.ReviewPaidConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionApprove, Note: "ok"})
	require.NoError(err)
	require.NotNil(approved.CommissionDetails)
	requireDecimal(t, "90", approved.CommissionDetails.CommissionAmount)
	requireDecimal(t, "270", approved.CommissionDetails.AmountPerReporter)

	for _, r := range reporters {
		_, err := f.svc.AcceptConference(ctx, r, models.KindPaidConference, conf.ID)
		require.NoError(err)
	}
	for i, r := range reporters[:2] {
		_, err := f.svc.SubmitConferenceProof(ctx, r, models.KindPaidConference, conf.ID, proofInput())
		require.NoError(err)
		a, err := f.svc.ApprovePaidConferenceProof(ctx, f.admin, conf.ID, r.ID, "tok-"+string(rune('a'+i)))
		require.NoError(err)
		require.Equal(models.AssignmentCompleted, a.Status)
		require.Equal(models.ProofApproved, a.ProofStatus())
	}

	// Replaying an approval token is refused and credits nothing.
	_, err = f.svc.ApprovePaidConferenceProof(ctx, f.admin, conf.ID, reporters[0].ID, "tok-a")
	require.ErrorIs(err, ErrTokenConsumed)
	// A fresh token on a completed row only re-drives the payout.
	_, err = f.svc.ApprovePaidConferenceProof(ctx, f.admin, conf.ID, reporters[0].ID, "tok-z")
	require.NoError(err)

	balance, err := f.svc.Balance(ctx, reporters[0].ID, reporters[0].Role)
	require.NoError(err)
	requireDecimal(t, "270", balance)

	done, err := f.svc.ForceCompletePaidConference(ctx, f.admin, conf.ID, "event over")
	require.NoError(err)
	require.Equal(models.ConferenceStatusCompleted, done.Status)
	require.NotNil(done.RefundDetails)
	requireDecimal(t, "270", done.RefundDetails.Amount)
	require.Equal(1, done.RefundDetails.ShortfallCount)
	require.Contains(done.RefundDetails.Reason, "1 unfulfilled")

	balance, err = f.svc.Balance(ctx, press.ID, press.Role)
	require.NoError(err)
	requireDecimal(t, "270", balance)
	require.NoError(f.svc.Reconcile(ctx, press.ID, press.Role))

	detail, err := f.svc.GetPaidConference(ctx, press, conf.ID)
	require.NoError(err)
	for _, a := range detail.Assignments {
		if a.ReporterID == reporters[2].ID {
			require.Equal(models.AssignmentRejected, a.Status)
			require.Equal(models.AutoRejectForceCompleteNote, a.RejectNote)
		}
	}

	_, err = f.svc.ForceCompletePaidConference(ctx, f.admin, conf.ID, "")
	require.ErrorIs(err, ErrInvalidTransition)
}

func TestPaidConferenceCompletesWhenQuotaMet(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")
	f.fund(t, press, 300)
	r := f.reporters(t, 1)[0]
	conf := submitPaid(t, f, press, 1)
	_, err := f.svc.ReviewPaidConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionApprove, Note: "ok"})
	require.NoError(err)

	_, err = f.svc.AcceptPaidConference(ctx, r, conf.ID)
	require.NoError(err)
	_, err = f.svc.SubmitConferenceProof(ctx, r, models.KindPaidConference, conf.ID, proofInput())
	require.NoError(err)

	_, err = f.svc.RejectPaidConferenceProof(ctx, f.admin, conf.ID, r.ID, "")
	require.ErrorIs(err, ErrValidation)
	a, err := f.svc.RejectPaidConferenceProof(ctx, f.admin, conf.ID, r.ID, "audio missing")
	require.NoError(err)
	require.Equal(models.ProofRejected, a.ProofStatus())

	_, err = f.svc.ApprovePaidConferenceProof(ctx, f.admin, conf.ID, r.ID, "tok-1")
	require.NoError(err)

	detail, err := f.svc.GetPaidConference(ctx, f.admin, conf.ID)
	require.NoError(err)
	require.Equal(models.ConferenceStatusCompleted, detail.Conference.Status)
	balance, err := f.svc.Balance(ctx, r.ID, r.Role)
	require.NoError(err)
	requireDecimal(t, "270", balance)
}

func TestRejectPaidConferenceRefunds(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")
	f.fund(t, press, 600)
	conf := submitPaid(t, f, press, 2)

	rejected, err := f.svc.ReviewPaidConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionReject, Note: "duplicate request"})
	require.NoError(err)
	require.Equal(models.ConferenceStatusRejected, rejected.Status)
	require.Equal(models.PaymentStatusRefunded, rejected.PaymentStatus)
	require.NotNil(rejected.RefundDetails)
	requireDecimal(t, "600", rejected.RefundDetails.Amount)

	balance, err := f.svc.Balance(ctx, press.ID, press.Role)
	require.NoError(err)
	requireDecimal(t, "600", balance)

	_, err = f.svc.ReviewPaidConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionApprove, Note: "changed mind"})
	require.ErrorIs(err, ErrInvalidTransition)
}

func TestRemoveConferenceReporterReleasesSlot(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")
	f.fund(t, press, 300)
	reporters := f.reporters(t, 2)
	conf := submitPaid(t, f, press, 1)
	_, err := f.svc.ReviewPaidConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionApprove, Note: "ok"})
	require.NoError(err)

	_, err = f.svc.AcceptPaidConference(ctx, reporters[0], conf.ID)
	require.NoError(err)
	_, err = f.svc.AcceptPaidConference(ctx, reporters[1], conf.ID)
	require.ErrorIs(err, ErrCapacityReached)

	require.NoError(f.svc.RemoveConferenceReporter(ctx, f.admin, models.KindPaidConference, conf.ID, reporters[0].ID))

	detail, err := f.svc.GetPaidConference(ctx, f.admin, conf.ID)
	require.NoError(err)
	require.Equal(models.ConferenceStatusApproved, detail.Conference.Status)
	require.Zero(detail.Conference.AcceptedCount)
	require.Contains(detail.Conference.ExcludedReporters, reporters[0].ID)

	_, err = f.svc.AcceptPaidConference(ctx, reporters[0], conf.ID)
	require.ErrorIs(err, ErrNotTargeted)
	_, err = f.svc.AcceptPaidConference(ctx, reporters[1], conf.ID)
	require.NoError(err)
}

func TestPaidProofApprovalRetriesFailedPayout(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	flaky := &failingCredits{Store: f.store, match: ":payout:"}
	f.svc.store = flaky

	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")
	f.fund(t, press, 600)
	reporters := f.reporters(t, 2)
	conf := submitPaid(t, f, press, 2)
	_, err := f.svc.ReviewPaidConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionApprove, Note: "ok"})
	require.NoError(err)
	r := reporters[0]
	_, err = f.svc.AcceptConference(ctx, r, models.KindPaidConference, conf.ID)
	require.NoError(err)
	_, err = f.svc.SubmitConferenceProof(ctx, r, models.KindPaidConference, conf.ID, proofInput())
	require.NoError(err)

	flaky.n.Store(1)
	_, err = f.svc.ApprovePaidConferenceProof(ctx, f.admin, conf.ID, r.ID, "tok-1")
	require.ErrorContains(err, "transient write failure")
	balance, err := f.svc.Balance(ctx, r.ID, r.Role)
	require.NoError(err)
	require.True(balance.IsZero())

	// The same token is usable again after the failed payout.
	a, err := f.svc.ApprovePaidConferenceProof(ctx, f.admin, conf.ID, r.ID, "tok-1")
	require.NoError(err)
	require.Equal(models.AssignmentCompleted, a.Status)
	balance, err = f.svc.Balance(ctx, r.ID, r.Role)
	require.NoError(err)
	requireDecimal(t, "270", balance)

	_, err = f.svc.ApprovePaidConferenceProof(ctx, f.admin, conf.ID, r.ID, "tok-2")
	require.NoError(err)
	balance, err = f.svc.Balance(ctx, r.ID, r.Role)
	require.NoError(err)
	requireDecimal(t, "270", balance)
	require.NoError(f.svc.Reconcile(ctx, r.ID, r.Role))
}

func TestForceCompletePaysStrandedPayout(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	flaky := &failingCredits{Store: f.store, match: ":payout:"}
	f.svc.store = flaky

	press := f.user(t, models.RolePress, "Punjab", "Ludhiana")
	f.fund(t, press, 600)
	reporters := f.reporters(t, 2)
	conf := submitPaid(t, f, press, 2)
	_, err := f.svc.ReviewPaidConference(ctx, f.admin, conf.ID, ReviewInput{Action: ActionApprove, Note: "ok"})
	require.NoError(err)
	r := reporters[0]
	_, err = f.svc.AcceptConference(ctx, r, models.KindPaidConference, conf.ID)
	require.NoError(err)
	_, err = f.svc.SubmitConferenceProof(ctx, r, models.KindPaidConference, conf.ID, proofInput())
	require.NoError(err)

	flaky.n.Store(1)
	_, err = f.svc.ApprovePaidConferenceProof(ctx, f.admin, conf.ID, r.ID, "tok-1")
	require.Error(err)

	done, err := f.svc.ForceCompletePaidConference(ctx, f.admin, conf.ID, "event over")
	require.NoError(err)
	require.Equal(models.ConferenceStatusCompleted, done.Status)

	balance, err := f.svc.Balance(ctx, r.ID, r.Role)
	require.NoError(err)
	requireDecimal(t, "270", balance)

	// One slot was fulfilled, the other is refunded.
	balance, err = f.svc.Balance(ctx, press.ID, press.Role)
	require.NoError(err)
	requireDecimal(t, "270", balance)
}
