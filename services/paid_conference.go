package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store"
	"github.com/phillip/iinsaf-marketplace-go/targeting"
)

type PaidConferenceInput struct {
	ConferenceInput
	NumberOfReporters int
	PaymentMethod     string
	Payment           GatewayProof
}

// SubmitPaidConference quotes the conference, takes payment and stores it
// under a unique PAID code. Payment is compensated when the insert fails.
func (s *Service) SubmitPaidConference(ctx context.Context, actor Actor, in PaidConferenceInput) (models.PaidConference, error) {
	if err := in.validate(); err != nil {
		return models.PaidConference{}, err
	}
	pricing, err := s.Pricing(ctx)
	if err != nil {
		return models.PaidConference{}, err
	}
	quote, err := QuotePaidConference(pricing, in.NumberOfReporters)
	if err != nil {
		return models.PaidConference{}, err
	}

	conf := models.PaidConference{
		Conference:        in.base(actor, s.now()),
		NumberOfReporters: in.NumberOfReporters,
		Subtotal:          quote.Subtotal,
		GST:               quote.GST,
		PaymentAmount:     quote.Total,
		PaymentStatus:     models.PaymentStatusPaid,
		PaymentMethod:     in.PaymentMethod,
		PaymentID:         in.Payment.PaymentID,
		OrderID:           in.Payment.OrderID,
	}

	undoPayment, err := s.collectPayment(ctx, actor, in.PaymentMethod, in.Payment, quote.Total,
		paidPaymentRef(conf.ID), "Payment for paid conference", models.PaymentPurposePaidConference)
	if err != nil {
		return models.PaidConference{}, err
	}

	err = s.withUniqueCode(models.PaidConferencePrefix, func(code string) error {
		conf.ConferenceID = code
		return s.store.CreatePaidConference(ctx, &conf)
	})
	if err != nil {
		undoPayment(err)
		return models.PaidConference{}, storeErr(err, "conference")
	}
	zap.L().Info("Paid conference submitted",
		zap.String("conference_id", conf.ConferenceID),
		zap.Int("number_of_reporters", conf.NumberOfReporters),
		zap.String("payment_amount", conf.PaymentAmount.String()))
	return conf, nil
}

// ReviewPaidConference applies an admin decision. Approve and modify compute
// commission details once; reject refunds the full payment.
func (s *Service) ReviewPaidConference(ctx context.Context, actor Actor, id primitive.ObjectID, in ReviewInput) (models.PaidConference, error) {
	if !actor.IsAdmin() {
		return models.PaidConference{}, ErrForbidden
	}
	if strings.TrimSpace(in.Note) == "" {
		return models.PaidConference{}, validationf("note is required")
	}
	from, to, err := reviewTransition(in.Action)
	if err != nil {
		return models.PaidConference{}, err
	}
	conf, err := s.store.GetPaidConference(ctx, id)
	if err != nil {
		return models.PaidConference{}, storeErr(err, "conference")
	}
	if to == models.ConferenceStatusRejected {
		return s.rejectPaidConference(ctx, conf, in.Note)
	}

	now := s.now()
	patch := store.ConferencePatch{Status: &to, AdminNote: &in.Note}
	if conf.CommissionDetails == nil {
		pricing, err := s.Pricing(ctx)
		if err != nil {
			return models.PaidConference{}, err
		}
		details, err := PaidConferenceCommission(conf.PaymentAmount, pricing.PaidConferenceCommission, conf.NumberOfReporters, now)
		if err != nil {
			return models.PaidConference{}, err
		}
		patch.CommissionDetails = &details
	}
	if conf.ApprovedAt == nil {
		patch.ApprovedAt = &now
	}

	tgt := conf.Targeting
	if in.Targeting != nil {
		tgt = *in.Targeting
	}
	var resolved targeting.Result
	resolved, err = s.resolveConference(ctx, conf.Conference, tgt, to == models.ConferenceStatusModified)
	if err != nil {
		return models.PaidConference{}, err
	}
	patch.Targeting = &tgt
	patch.NotifiedReporters = mergeIDs(conf.NotifiedReporters, resolved.IDs())

	updated, err := s.store.PatchPaidConference(ctx, id, from, patch)
	if errors.Is(err, store.ErrConflict) {
		return models.PaidConference{}, fmt.Errorf("%w: conference is %s", ErrInvalidTransition, conf.Status)
	}
	if err != nil {
		return models.PaidConference{}, storeErr(err, "conference")
	}
	if err := s.persistOffer(ctx, models.KindPaidConference, updated.Conference, resolved, to == models.ConferenceStatusModified, now); err != nil {
		if _, rerr := s.store.PatchPaidConference(ctx, id, []models.ConferenceStatus{to}, store.ConferencePatch{Status: &conf.Status}); rerr != nil {
			zap.L().Error("Conference offer revert failed", zap.String("conference_id", conf.ConferenceID), zap.Error(rerr))
		}
		return models.PaidConference{}, err
	}
	return updated, nil
}

func (s *Service) rejectPaidConference(ctx context.Context, conf models.PaidConference, note string) (models.PaidConference, error) {
	if conf.Status != models.ConferenceStatusPending {
		return models.PaidConference{}, fmt.Errorf("%w: conference is %s", ErrInvalidTransition, conf.Status)
	}
	refund := LedgerEntry{
		UserID:        conf.SubmittedBy,
		UserType:      models.RolePress,
		Amount:        conf.PaymentAmount,
		Description:   "Refund for rejected conference " + conf.ConferenceID,
		CorrelationID: paidRefundRef(conf.ID),
	}
	credited := false
	if refund.Amount.IsPositive() {
		var err error
		if credited, err = s.settle(ctx, "paid_conference_refund", refund); err != nil {
			return models.PaidConference{}, err
		}
	}

	now := s.now()
	status := models.ConferenceStatusRejected
	paymentStatus := models.PaymentStatusRefunded
	updated, err := s.store.PatchPaidConference(ctx, conf.ID, []models.ConferenceStatus{models.ConferenceStatusPending}, store.ConferencePatch{
		Status:        &status,
		AdminNote:     &note,
		PaymentStatus: &paymentStatus,
		RefundDetails: &models.RefundDetails{
			Amount:     conf.PaymentAmount,
			Reason:     "Conference rejected: " + note,
			RefundedAt: now,
		},
	})
	if err != nil {
		if credited {
			_ = s.reverseCredit(ctx, refund, err)
		}
		if errors.Is(err, store.ErrConflict) {
			return models.PaidConference{}, fmt.Errorf("%w: conference is no longer pending", ErrInvalidTransition)
		}
		return models.PaidConference{}, storeErr(err, "conference")
	}
	s.notifyUser(ctx, models.Notification{
		Kind:     models.NotifyRefund,
		EntityID: conf.ID,
		Subject:  "Conference " + conf.ConferenceID + " rejected",
		Body:     fmt.Sprintf("Your conference was rejected: %s. %s has been refunded to your wallet.", note, conf.PaymentAmount),
	}, conf.SubmittedBy)
	return updated, nil
}

// AcceptPaidConference claims one of the conference's reporter slots. The
// count check and the claim happen in a single atomic store operation.
func (s *Service) AcceptPaidConference(ctx context.Context, actor Actor, id primitive.ObjectID) (models.Assignment, error) {
	if err := requireWorker(actor); err != nil {
		return models.Assignment{}, err
	}
	conf, err := s.store.GetPaidConference(ctx, id)
	if err != nil {
		return models.Assignment{}, storeErr(err, "conference")
	}
	a, err := s.assignment(ctx, models.KindPaidConference, id, actor.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Status.Responded() {
		return models.Assignment{}, ErrAlreadyResponded
	}
	if !conf.Status.Open() {
		if conf.Status == models.ConferenceStatusRunning {
			return models.Assignment{}, ErrCapacityReached
		}
		return models.Assignment{}, ErrNotOpen
	}

	res, err := s.claimSlot(ctx, store.SlotClaim{
		Kind:       models.KindPaidConference,
		EntityID:   id,
		ReporterID: actor.ID,
		Snapshot:   snapshotOf(conf.Conference),
		At:         s.now(),
	})
	if err != nil {
		return models.Assignment{}, err
	}
	return res.Assignment, nil
}

func (s *Service) AcceptConference(ctx context.Context, actor Actor, kind models.AssignmentKind, id primitive.ObjectID) (models.Assignment, error) {
	switch kind {
	case models.KindFreeConference:
		return s.AcceptFreeConference(ctx, actor, id)
	case models.KindPaidConference:
		return s.AcceptPaidConference(ctx, actor, id)
	default:
		return models.Assignment{}, validationf("unknown conference kind %q", kind)
	}
}

// ApprovePaidConferenceProof approves a reporter's proof and credits their
// share. token must be unique per approval attempt; a reused token is
// refused before any state changes.
func (s *Service) ApprovePaidConferenceProof(ctx context.Context, actor Actor, id, reporterID primitive.ObjectID, token string) (models.Assignment, error) {
	if !actor.IsAdmin() {
		return models.Assignment{}, ErrForbidden
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Assignment{}, validationf("idempotency token is required")
	}
	conf, err := s.store.GetPaidConference(ctx, id)
	if err != nil {
		return models.Assignment{}, storeErr(err, "conference")
	}
	if conf.CommissionDetails == nil {
		return models.Assignment{}, fmt.Errorf("%w: conference has not been approved", ErrInvalidTransition)
	}

	key := "paid-conference-proof:" + token
	if s.idem != nil {
		fresh, err := s.idem.Claim(ctx, key, s.opts.IdempotencyKeyTTL)
		if err != nil {
			return models.Assignment{}, fmt.Errorf("%w: idempotency store: %v", ErrExternal, err)
		}
		if !fresh {
			return models.Assignment{}, ErrTokenConsumed
		}
	}
	release := func(cause error) {
		if s.idem == nil {
			return
		}
		if err := s.idem.Release(ctx, key); err != nil {
			zap.L().Warn("idempotency key release failed", zap.String("key", key), zap.Error(err), zap.NamedError("cause", cause))
		}
	}

	a, err := s.assignment(ctx, models.KindPaidConference, id, reporterID)
	if err != nil {
		release(err)
		return models.Assignment{}, err
	}
	if a.Status == models.AssignmentCompleted && a.ProofStatus() == models.ProofApproved {
		// A repeated approval only re-drives the payout, which is idempotent.
		if err := s.payPaidReporter(ctx, conf, reporterID); err != nil {
			release(err)
			return models.Assignment{}, err
		}
		return a, s.completePaidConferenceIfFull(ctx, id)
	}
	if a.Status != models.AssignmentAccepted || a.Proof == nil {
		release(ErrInvalidTransition)
		return models.Assignment{}, fmt.Errorf("%w: no proof awaiting approval", ErrInvalidTransition)
	}

	now := s.now()
	proof := *a.Proof
	proof.Status = models.ProofApproved
	proof.AdminApprovedAt = &now
	proof.AdminRejectNote = ""
	proof.ApprovalToken = token
	updated, err := s.transition(ctx, store.Transition{
		Kind:       models.KindPaidConference,
		EntityID:   id,
		ReporterID: reporterID,
		From:       []models.AssignmentStatus{models.AssignmentAccepted},
		FromProof:  []models.ProofStatus{models.ProofPending, models.ProofRejected},
		Patch: store.AssignmentPatch{
			Status:      models.AssignmentCompleted,
			CompletedAt: &now,
			Proof:       &proof,
		},
		At: now,
	})
	if err != nil {
		release(err)
		return models.Assignment{}, err
	}

	if err := s.payPaidReporter(ctx, conf, reporterID); err != nil {
		// The row is completed; approving it again retries the payout.
		release(err)
		return models.Assignment{}, err
	}

	if err := s.completePaidConferenceIfFull(ctx, id); err != nil {
		return models.Assignment{}, err
	}
	return updated, nil
}

// payPaidReporter credits the reporter's share. The correlation id makes it
// safe to call again for a row that is already completed.
func (s *Service) payPaidReporter(ctx context.Context, conf models.PaidConference, reporterID primitive.ObjectID) error {
	amount := conf.CommissionDetails.AmountPerReporter
	if !amount.IsPositive() {
		return nil
	}
	paid, err := s.settle(ctx, "paid_conference_payout", LedgerEntry{
		UserID:        reporterID,
		UserType:      conf.UserType,
		Amount:        amount,
		Description:   "Payout for conference " + conf.ConferenceID,
		CorrelationID: paidPayoutRef(conf.ID, reporterID),
	})
	if err != nil {
		return err
	}
	if paid {
		s.notifyUser(ctx, models.Notification{
			Kind:     models.NotifyPayout,
			EntityID: conf.ID,
			Subject:  "Payment received",
			Body:     fmt.Sprintf("%s has been credited to your wallet for conference %s.", amount, conf.ConferenceID),
		}, reporterID)
	}
	return nil
}

// RejectPaidConferenceProof sends a pending proof back to the reporter.
func (s *Service) RejectPaidConferenceProof(ctx context.Context, actor Actor, id, reporterID primitive.ObjectID, note string) (models.Assignment, error) {
	if !actor.IsAdmin() {
		return models.Assignment{}, ErrForbidden
	}
	if strings.TrimSpace(note) == "" {
		return models.Assignment{}, validationf("note is required to reject a proof")
	}
	a, err := s.assignment(ctx, models.KindPaidConference, id, reporterID)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Status != models.AssignmentAccepted || a.ProofStatus() != models.ProofPending {
		return models.Assignment{}, fmt.Errorf("%w: no proof awaiting review", ErrInvalidTransition)
	}
	now := s.now()
	proof := *a.Proof
	proof.Status = models.ProofRejected
	proof.AdminRejectNote = note
	updated, err := s.transition(ctx, store.Transition{
		Kind:       models.KindPaidConference,
		EntityID:   id,
		ReporterID: reporterID,
		From:       []models.AssignmentStatus{models.AssignmentAccepted},
		FromProof:  []models.ProofStatus{models.ProofPending},
		Patch: store.AssignmentPatch{
			Status:          models.AssignmentAccepted,
			Proof:           &proof,
			AdminRejectedBy: &actor.ID,
			AdminRejectedAt: &now,
			AdminRejectNote: &note,
		},
		At: now,
	})
	if err != nil {
		return models.Assignment{}, err
	}
	s.notifyProofReviewed(ctx, id, reporterID, "conference", false, note)
	return updated, nil
}

func (s *Service) completePaidConferenceIfFull(ctx context.Context, id primitive.ObjectID) error {
	conf, err := s.store.GetPaidConference(ctx, id)
	if err != nil {
		return storeErr(err, "conference")
	}
	rows, err := s.store.ListByEntity(ctx, models.KindPaidConference, id)
	if err != nil {
		return storeErr(err, "assignments")
	}
	if summarise(rows).Completed < conf.NumberOfReporters {
		return nil
	}
	now := s.now()
	status := models.ConferenceStatusCompleted
	_, err = s.store.PatchPaidConference(ctx, id,
		[]models.ConferenceStatus{models.ConferenceStatusRunning, models.ConferenceStatusApproved, models.ConferenceStatusModified},
		store.ConferencePatch{Status: &status, CompletedAt: &now})
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err != nil {
		return storeErr(err, "conference")
	}
	zap.L().Info("Paid conference completed", zap.String("conference_id", conf.ConferenceID))
	return nil
}

// ForceCompletePaidConference closes a conference early. Reporters without an
// approved proof are rejected and the submitter is refunded for every slot
// that was not completed.
func (s *Service) ForceCompletePaidConference(ctx context.Context, actor Actor, id primitive.ObjectID, note string) (models.PaidConference, error) {
	if !actor.IsAdmin() {
		return models.PaidConference{}, ErrForbidden
	}
	conf, err := s.store.GetPaidConference(ctx, id)
	if err != nil {
		return models.PaidConference{}, storeErr(err, "conference")
	}
	open := []models.ConferenceStatus{models.ConferenceStatusApproved, models.ConferenceStatusModified, models.ConferenceStatusRunning}
	if !containsConferenceStatus(open, conf.Status) || conf.CommissionDetails == nil {
		return models.PaidConference{}, fmt.Errorf("%w: conference is %s", ErrInvalidTransition, conf.Status)
	}

	rows, err := s.store.ListByEntity(ctx, models.KindPaidConference, id)
	if err != nil {
		return models.PaidConference{}, storeErr(err, "assignments")
	}
	now := s.now()
	autoNote := models.AutoRejectForceCompleteNote
	completed := 0
	for _, a := range rows {
		switch a.Status {
		case models.AssignmentCompleted:
			if err := s.payPaidReporter(ctx, conf, a.ReporterID); err != nil {
				return models.PaidConference{}, err
			}
			completed++
			continue
		case models.AssignmentPending, models.AssignmentAccepted:
		default:
			continue
		}
		_, err := s.transition(ctx, store.Transition{
			Kind:       models.KindPaidConference,
			EntityID:   id,
			ReporterID: a.ReporterID,
			From:       models.SourcesFor(models.KindPaidConference, models.AssignmentRejected),
			Patch: store.AssignmentPatch{
				Status:          models.AssignmentRejected,
				RejectedAt:      &now,
				RejectNote:      &autoNote,
				AdminRejectedBy: &actor.ID,
				AdminRejectedAt: &now,
				AdminRejectNote: &autoNote,
			},
			At: now,
		})
		if err != nil {
			return models.PaidConference{}, err
		}
	}

	refundAmount := ShortfallRefund(conf.NumberOfReporters, completed, conf.CommissionDetails.AmountPerReporter)
	shortfall := conf.NumberOfReporters - completed
	if shortfall < 0 {
		shortfall = 0
	}
	reason := fmt.Sprintf("Shortfall refund for %d unfulfilled reporter slot(s)", shortfall)
	if refundAmount.IsPositive() {
		if _, err := s.settle(ctx, "paid_conference_refund", LedgerEntry{
			UserID:        conf.SubmittedBy,
			UserType:      models.RolePress,
			Amount:        refundAmount,
			Description:   reason + " on conference " + conf.ConferenceID,
			CorrelationID: paidRefundRef(conf.ID),
		}); err != nil {
			return models.PaidConference{}, err
		}
	}

	status := models.ConferenceStatusCompleted
	patch := store.ConferencePatch{Status: &status, CompletedAt: &now}
	if strings.TrimSpace(note) != "" {
		patch.AdminNote = &note
	}
	if refundAmount.IsPositive() {
		patch.RefundDetails = &models.RefundDetails{
			Amount:         refundAmount,
			Reason:         reason,
			ShortfallCount: shortfall,
			RefundedAt:     now,
		}
	}
	updated, err := s.store.PatchPaidConference(ctx, id, open, patch)
	if errors.Is(err, store.ErrConflict) {
		return models.PaidConference{}, fmt.Errorf("%w: conference changed while completing", ErrConflict)
	}
	if err != nil {
		return models.PaidConference{}, storeErr(err, "conference")
	}

	zap.L().Info("Paid conference force completed",
		zap.String("conference_id", conf.ConferenceID),
		zap.Int("completed", completed),
		zap.Int("shortfall", shortfall),
		zap.String("refund", refundAmount.String()))
	if refundAmount.IsPositive() {
		s.notifyUser(ctx, models.Notification{
			Kind:     models.NotifyRefund,
			EntityID: conf.ID,
			Subject:  "Conference " + conf.ConferenceID + " completed",
			Body:     fmt.Sprintf("%s. %s has been refunded to your wallet.", reason, refundAmount),
		}, conf.SubmittedBy)
	}
	return updated, nil
}

func (s *Service) GetPaidConference(ctx context.Context, actor Actor, id primitive.ObjectID) (ConferenceDetail[models.PaidConference], error) {
	conf, err := s.store.GetPaidConference(ctx, id)
	if err != nil {
		return ConferenceDetail[models.PaidConference]{}, storeErr(err, "conference")
	}
	if !actor.IsAdmin() && conf.SubmittedBy != actor.ID {
		return ConferenceDetail[models.PaidConference]{}, ErrNotOwner
	}
	rows, err := s.store.ListByEntity(ctx, models.KindPaidConference, id)
	if err != nil {
		return ConferenceDetail[models.PaidConference]{}, storeErr(err, "assignments")
	}
	return ConferenceDetail[models.PaidConference]{Conference: conf, Assignments: rows, Progress: summarise(rows)}, nil
}

func (s *Service) ListPaidConferences(ctx context.Context, actor Actor, status models.ConferenceStatus) ([]models.PaidConference, error) {
	filter := store.ConferenceFilter{Status: status}
	if !actor.IsAdmin() {
		filter.SubmittedBy = &actor.ID
	}
	out, err := s.store.ListPaidConferences(ctx, filter)
	return out, storeErr(err, "conferences")
}

func containsConferenceStatus(set []models.ConferenceStatus, v models.ConferenceStatus) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
