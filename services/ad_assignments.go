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
)

func requireWorker(actor Actor) error {
	if !models.IsWorkerRole(actor.Role) {
		return fmt.Errorf("%w: only reporters and influencers can do this", ErrForbidden)
	}
	if !actor.Verified {
		return fmt.Errorf("%w: account is not verified", ErrForbidden)
	}
	return nil
}

func (s *Service) assignment(ctx context.Context, kind models.AssignmentKind, entityID, reporterID primitive.ObjectID) (models.Assignment, error) {
	a, err := s.store.GetAssignment(ctx, kind, entityID, reporterID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Assignment{}, ErrNotTargeted
	}
	if err != nil {
		return models.Assignment{}, storeErr(err, "assignment")
	}
	return a, nil
}

// transition runs a compare-and-swap after checking the transition table.
func (s *Service) transition(ctx context.Context, t store.Transition) (models.Assignment, error) {
	for _, from := range t.From {
		if from != t.Patch.Status && !models.CanTransition(t.Kind, from, t.Patch.Status) {
			return models.Assignment{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, t.Patch.Status)
		}
	}
	if t.Patch.Proof != nil && t.FromProof != nil {
		for _, from := range t.FromProof {
			if from != t.Patch.Proof.Status && !models.CanTransitionProof(from, t.Patch.Proof.Status) {
				return models.Assignment{}, fmt.Errorf("%w: proof %s to %s", ErrInvalidTransition, from, t.Patch.Proof.Status)
			}
		}
	}
	if t.At.IsZero() {
		t.At = s.now()
	}
	a, err := s.store.TransitionAssignment(ctx, t)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return models.Assignment{}, ErrNotTargeted
	case errors.Is(err, store.ErrConflict):
		return models.Assignment{}, fmt.Errorf("%w: assignment changed, reload and retry", ErrConflict)
	case err != nil:
		return models.Assignment{}, storeErr(err, "assignment")
	}
	return a, nil
}

// claimSlot takes one reporter slot and records the outcome.
func (s *Service) claimSlot(ctx context.Context, claim store.SlotClaim) (store.ClaimResult, error) {
	res, err := s.store.ClaimSlot(ctx, claim)
	switch {
	case err == nil:
		s.metrics.ObserveClaim(string(claim.Kind), "accepted")
		if res.Filled {
			zap.L().Info("Reporter quota filled",
				zap.String("kind", string(claim.Kind)),
				zap.String("entity_id", claim.EntityID.Hex()),
				zap.Int("quota", res.Quota))
		}
		return res, nil
	case errors.Is(err, store.ErrCapacityReached):
		s.metrics.ObserveClaim(string(claim.Kind), "full")
		return store.ClaimResult{}, ErrCapacityReached
	case errors.Is(err, store.ErrConflict):
		s.metrics.ObserveClaim(string(claim.Kind), "responded")
		return store.ClaimResult{}, ErrAlreadyResponded
	case errors.Is(err, store.ErrNotFound):
		return store.ClaimResult{}, ErrNotTargeted
	default:
		s.metrics.ObserveClaim(string(claim.Kind), "error")
		return store.ClaimResult{}, storeErr(err, "assignment")
	}
}

// AcceptAd takes one of the ad's reporter slots. Acting after the accept
// window records an automatic rejection instead.
func (s *Service) AcceptAd(ctx context.Context, actor Actor, adID primitive.ObjectID) (models.Assignment, error) {
	if err := requireWorker(actor); err != nil {
		return models.Assignment{}, err
	}
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		return models.Assignment{}, storeErr(err, "ad")
	}
	a, err := s.assignment(ctx, models.KindAd, adID, actor.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Status.Responded() {
		return models.Assignment{}, ErrAlreadyResponded
	}

	now := s.now()
	if ad.AcceptBefore != nil && !now.Before(*ad.AcceptBefore) {
		note := models.AutoRejectExpiredNote
		if _, err := s.transition(ctx, store.Transition{
			Kind:       models.KindAd,
			EntityID:   adID,
			ReporterID: actor.ID,
			From:       []models.AssignmentStatus{models.AssignmentPending},
			Patch: store.AssignmentPatch{
				Status:     models.AssignmentRejected,
				RejectedAt: &now,
				RejectNote: &note,
			},
			At: now,
		}); err != nil {
			return models.Assignment{}, err
		}
		zap.L().Info("Ad acceptance expired", zap.String("ad_id", adID.Hex()), zap.String("reporter_id", actor.ID.Hex()))
		return models.Assignment{}, ErrAcceptWindowExpired
	}

	if !ad.Status.Open() {
		if ad.Full() {
			return models.Assignment{}, ErrCapacityReached
		}
		return models.Assignment{}, ErrNotOpen
	}
	if ad.Full() {
		return models.Assignment{}, ErrCapacityReached
	}

	res, err := s.claimSlot(ctx, store.SlotClaim{
		Kind:       models.KindAd,
		EntityID:   adID,
		ReporterID: actor.ID,
		At:         now,
	})
	if err != nil {
		return models.Assignment{}, err
	}
	return res.Assignment, nil
}

// RejectAd declines an offered ad.
func (s *Service) RejectAd(ctx context.Context, actor Actor, adID primitive.ObjectID, note string) (models.Assignment, error) {
	if err := requireWorker(actor); err != nil {
		return models.Assignment{}, err
	}
	if strings.TrimSpace(note) == "" {
		return models.Assignment{}, validationf("note is required")
	}
	a, err := s.assignment(ctx, models.KindAd, adID, actor.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Status.Responded() {
		return models.Assignment{}, ErrAlreadyResponded
	}
	now := s.now()
	a, err = s.transition(ctx, store.Transition{
		Kind:       models.KindAd,
		EntityID:   adID,
		ReporterID: actor.ID,
		From:       []models.AssignmentStatus{models.AssignmentPending},
		Patch: store.AssignmentPatch{
			Status:     models.AssignmentRejected,
			RejectedAt: &now,
			RejectNote: &note,
		},
		At: now,
	})
	if errors.Is(err, ErrConflict) {
		return models.Assignment{}, ErrAlreadyResponded
	}
	return a, err
}

// SubmitInitialProof records the reporter's first proof for admin review.
// The first submission must arrive within the proof window after acceptance.
func (s *Service) SubmitInitialProof(ctx context.Context, actor Actor, adID primitive.ObjectID, in ProofInput) (models.Assignment, error) {
	if err := requireWorker(actor); err != nil {
		return models.Assignment{}, err
	}
	a, err := s.assignment(ctx, models.KindAd, adID, actor.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if !models.CanTransition(models.KindAd, a.Status, models.AssignmentSubmitted) {
		return models.Assignment{}, fmt.Errorf("%w: assignment is %s", ErrInvalidTransition, a.Status)
	}
	if !models.CanTransitionProof(a.ProofStatus(), models.ProofPending) {
		return models.Assignment{}, fmt.Errorf("%w: proof is already %s", ErrInvalidTransition, a.ProofStatus())
	}

	now := s.now()
	if a.Status == models.AssignmentAccepted && a.Proof == nil && a.AcceptedAt != nil &&
		now.After(a.AcceptedAt.Add(s.opts.ProofSubmissionWindow)) {
		note := models.AutoRejectProofDeadlineNote
		if _, err := s.transition(ctx, store.Transition{
			Kind:        models.KindAd,
			EntityID:    adID,
			ReporterID:  actor.ID,
			From:        []models.AssignmentStatus{models.AssignmentAccepted},
			Patch:       store.AssignmentPatch{Status: models.AssignmentRejected, RejectedAt: &now, RejectNote: &note},
			At:          now,
			ReleaseSlot: true,
		}); err != nil {
			return models.Assignment{}, err
		}
		zap.L().Info("Initial proof deadline missed", zap.String("ad_id", adID.Hex()), zap.String("reporter_id", actor.ID.Hex()))
		return models.Assignment{}, ErrProofWindowExpired
	}

	pricing, err := s.Pricing(ctx)
	if err != nil {
		return models.Assignment{}, err
	}
	if err := in.validate(pricing); err != nil {
		return models.Assignment{}, err
	}
	url, err := s.upload(ctx, in.Screenshot, "ad-proofs")
	if err != nil {
		return models.Assignment{}, err
	}

	adProof := true
	return s.transition(ctx, store.Transition{
		Kind:       models.KindAd,
		EntityID:   adID,
		ReporterID: actor.ID,
		From:       []models.AssignmentStatus{a.Status},
		FromProof:  []models.ProofStatus{a.ProofStatus()},
		Patch: store.AssignmentPatch{
			Status:  models.AssignmentSubmitted,
			AdProof: &adProof,
			Proof: &models.Proof{
				Screenshot:  url,
				ChannelName: in.ChannelName,
				Platform:    in.Platform,
				VideoLink:   in.VideoLink,
				Duration:    in.Duration,
				Note:        in.Note,
				Status:      models.ProofPending,
				SubmittedAt: now,
			},
		},
		At: now,
	})
}

// ReviewInitialProof approves or rejects a pending initial proof.
func (s *Service) ReviewInitialProof(ctx context.Context, actor Actor, adID, reporterID primitive.ObjectID, approve bool, note string) (models.Assignment, error) {
	if !actor.IsAdmin() {
		return models.Assignment{}, ErrForbidden
	}
	if !approve && strings.TrimSpace(note) == "" {
		return models.Assignment{}, validationf("note is required to reject a proof")
	}
	a, err := s.assignment(ctx, models.KindAd, adID, reporterID)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Proof == nil || a.Proof.Status != models.ProofPending {
		return models.Assignment{}, fmt.Errorf("%w: no initial proof awaiting review", ErrInvalidTransition)
	}

	now := s.now()
	proof := *a.Proof
	patch := store.AssignmentPatch{Status: models.AssignmentSubmitted, Proof: &proof}
	if approve {
		proof.Status = models.ProofApproved
		proof.AdminApprovedAt = &now
		proof.AdminRejectNote = ""
	} else {
		adProof := false
		proof.Status = models.ProofRejected
		proof.AdminRejectNote = note
		patch.AdProof = &adProof
		patch.AdminRejectedBy = &actor.ID
		patch.AdminRejectedAt = &now
		patch.AdminRejectNote = &note
	}

	updated, err := s.transition(ctx, store.Transition{
		Kind:       models.KindAd,
		EntityID:   adID,
		ReporterID: reporterID,
		From:       []models.AssignmentStatus{models.AssignmentSubmitted},
		FromProof:  []models.ProofStatus{models.ProofPending},
		Patch:      patch,
		At:         now,
	})
	if err != nil {
		return models.Assignment{}, err
	}
	s.notifyProofReviewed(ctx, adID, reporterID, "initial", approve, note)
	return updated, nil
}

// SubmitCompletionProof records the final deliverable once the initial proof
// is approved and the video has reached the ad's base view count.
func (s *Service) SubmitCompletionProof(ctx context.Context, actor Actor, adID primitive.ObjectID, in CompletionInput) (CompletionResult, error) {
	if err := requireWorker(actor); err != nil {
		return CompletionResult{}, err
	}
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		return CompletionResult{}, storeErr(err, "ad")
	}
	a, err := s.assignment(ctx, models.KindAd, adID, actor.ID)
	if err != nil {
		return CompletionResult{}, err
	}
	switch a.ProofStatus() {
	case models.ProofApproved:
	case models.ProofSubmitted, models.ProofCompleted:
		return CompletionResult{}, fmt.Errorf("%w: completion proof already %s", ErrInvalidTransition, a.ProofStatus())
	default:
		return CompletionResult{}, ErrInitialProofRequired
	}
	if !models.CanTransition(models.KindAd, a.Status, models.AssignmentProofSubmitted) {
		return CompletionResult{}, fmt.Errorf("%w: assignment is %s", ErrInvalidTransition, a.Status)
	}
	if in.Screenshot == nil || in.Screenshot.File == nil {
		return CompletionResult{}, validationf("completed task screenshot is required")
	}

	platform, link := in.Platform, in.VideoLink
	if platform == "" {
		platform = a.Proof.Platform
	}
	if link == "" {
		link = a.Proof.VideoLink
	}
	res := CompletionResult{RequiredViews: ad.BaseView, Assignment: a}
	views, ok := s.currentViews(ctx, platform, link)
	res.CurrentViews = views
	if !ok {
		res.Message = "view count is unavailable right now, the task is not yet completed"
		return res, nil
	}
	if views < ad.BaseView {
		res.Message = fmt.Sprintf("task not yet completed: %d of %d views", views, ad.BaseView)
		return res, nil
	}

	url, err := s.upload(ctx, in.Screenshot, "ad-completions")
	if err != nil {
		return CompletionResult{}, err
	}
	now := s.now()
	proof := *a.Proof
	proof.Status = models.ProofSubmitted
	proof.CompletedTaskScreenshot = url
	proof.CompletionVideoLink = link
	proof.CompletionViews = views
	proof.CompletionSubmittedAt = &now

	updated, err := s.transition(ctx, store.Transition{
		Kind:       models.KindAd,
		EntityID:   adID,
		ReporterID: actor.ID,
		From:       []models.AssignmentStatus{models.AssignmentSubmitted},
		FromProof:  []models.ProofStatus{models.ProofApproved},
		Patch:      store.AssignmentPatch{Status: models.AssignmentProofSubmitted, Proof: &proof},
		At:         now,
	})
	if err != nil {
		return CompletionResult{}, err
	}
	res.Completed = true
	res.Assignment = updated
	return res, nil
}

// ReviewCompletionProof approves or rejects a submitted completion proof.
// Approval pays the reporter once and may complete the ad.
func (s *Service) ReviewCompletionProof(ctx context.Context, actor Actor, adID, reporterID primitive.ObjectID, approve bool, note string) (models.Assignment, error) {
	if !actor.IsAdmin() {
		return models.Assignment{}, ErrForbidden
	}
	if !approve && strings.TrimSpace(note) == "" {
		return models.Assignment{}, validationf("note is required to reject a proof")
	}
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		return models.Assignment{}, storeErr(err, "ad")
	}
	a, err := s.assignment(ctx, models.KindAd, adID, reporterID)
	if err != nil {
		return models.Assignment{}, err
	}

	if approve && a.Status == models.AssignmentCompleted {
		// A repeated approval only re-drives settlement, which is idempotent.
		if err := s.payAdReporter(ctx, ad, reporterID); err != nil {
			return models.Assignment{}, err
		}
		return a, s.completeAdIfDone(ctx, adID)
	}
	if a.Status != models.AssignmentProofSubmitted || a.ProofStatus() != models.ProofSubmitted {
		return models.Assignment{}, fmt.Errorf("%w: no completion proof awaiting review", ErrInvalidTransition)
	}

	now := s.now()
	proof := *a.Proof
	patch := store.AssignmentPatch{Proof: &proof}
	if approve {
		proof.Status = models.ProofCompleted
		proof.AdminApprovedAt = &now
		patch.Status = models.AssignmentCompleted
		patch.CompletedAt = &now
	} else {
		adProof := false
		proof.Status = models.ProofRejected
		proof.AdminRejectNote = note
		patch.Status = models.AssignmentProofRejected
		patch.AdProof = &adProof
		patch.AdminRejectedBy = &actor.ID
		patch.AdminRejectedAt = &now
		patch.AdminRejectNote = &note
	}

	updated, err := s.transition(ctx, store.Transition{
		Kind:       models.KindAd,
		EntityID:   adID,
		ReporterID: reporterID,
		From:       []models.AssignmentStatus{models.AssignmentProofSubmitted},
		FromProof:  []models.ProofStatus{models.ProofSubmitted},
		Patch:      patch,
		At:         now,
	})
	if err != nil {
		return models.Assignment{}, err
	}
	s.notifyProofReviewed(ctx, adID, reporterID, "completion", approve, note)
	if !approve {
		return updated, nil
	}

	if err := s.payAdReporter(ctx, ad, reporterID); err != nil {
		return models.Assignment{}, err
	}
	if err := s.completeAdIfDone(ctx, adID); err != nil {
		return models.Assignment{}, err
	}
	return updated, nil
}

func (s *Service) payAdReporter(ctx context.Context, ad models.Advertisement, reporterID primitive.ObjectID) error {
	if !ad.FinalReporterPrice.IsPositive() {
		return nil
	}
	paid, err := s.settle(ctx, "ad_payout", LedgerEntry{
		UserID:        reporterID,
		UserType:      ad.UserType,
		Amount:        ad.FinalReporterPrice,
		Description:   "Payout for ad " + ad.ID.Hex(),
		CorrelationID: adPayoutRef(ad.ID, reporterID),
	})
	if err != nil {
		return err
	}
	if paid {
		s.notifyUser(ctx, models.Notification{
			Kind:     models.NotifyPayout,
			EntityID: ad.ID,
			Subject:  "Payment received",
			Body:     fmt.Sprintf("%s has been credited to your wallet for completing an ad.", ad.FinalReporterPrice),
		}, reporterID)
	}
	return nil
}

func (s *Service) notifyProofReviewed(ctx context.Context, entityID, reporterID primitive.ObjectID, stage string, approved bool, note string) {
	outcome := "approved"
	if !approved {
		outcome = "rejected: " + note
	}
	s.notifyUser(ctx, models.Notification{
		Kind:     models.NotifyProofReviewed,
		EntityID: entityID,
		Subject:  "Proof reviewed",
		Body:     fmt.Sprintf("Your %s proof was %s", stage, outcome),
	}, reporterID)
}
