package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store"
	"github.com/phillip/iinsaf-marketplace-go/targeting"
)

// Admin review actions shared by ads and conferences.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionModify  = "modify"
)

type CreateAdInput struct {
	AdType        string
	ChannelType   string
	Description   string
	RequiredViews int64
	AdLength      int
	Days          int
	UserType      string
	Location      models.Location
	Cities        []string
	CouponCode    string
	PaymentMethod string
	Payment       GatewayProof
	Media         []Upload
}

// CreateAd prices the ad, takes payment and stores it as pending review.
// Any payment taken is compensated when a later step fails.
func (s *Service) CreateAd(ctx context.Context, actor Actor, in CreateAdInput) (models.Advertisement, error) {
	if actor.Role != models.RoleAdvertiser {
		return models.Advertisement{}, fmt.Errorf("%w: only advertisers can create ads", ErrForbidden)
	}
	if !models.IsWorkerRole(in.UserType) {
		return models.Advertisement{}, validationf("user_type must be reporter or influencer")
	}
	if strings.TrimSpace(in.Location.State) == "" || strings.TrimSpace(in.Location.City) == "" {
		return models.Advertisement{}, validationf("location state and city are required")
	}

	pricing, err := s.Pricing(ctx)
	if err != nil {
		return models.Advertisement{}, err
	}
	if in.ChannelType != "" && len(pricing.ChannelTypes) > 0 && !containsString(pricing.ChannelTypes, in.ChannelType) {
		return models.Advertisement{}, validationf("unknown channel type %q", in.ChannelType)
	}
	quote, err := QuoteAd(pricing, AdQuoteInput{
		AdType:        in.AdType,
		RequiredViews: in.RequiredViews,
		AdLength:      in.AdLength,
		Days:          in.Days,
		Cities:        len(in.Cities),
	})
	if err != nil {
		return models.Advertisement{}, err
	}

	ad := models.Advertisement{
		ID:               primitive.NewObjectID(),
		OwnerID:          actor.ID,
		AdType:           in.AdType,
		ChannelType:      in.ChannelType,
		Description:      in.Description,
		RequiredViews:    in.RequiredViews,
		AdLength:         in.AdLength,
		Days:             in.Days,
		UserType:         in.UserType,
		Location:         in.Location,
		Subtotal:         quote.Subtotal,
		GST:              quote.GST,
		TotalCost:        quote.Total,
		DiscountAmount:   decimal.Zero,
		PaidAmount:       quote.Total,
		BaseView:         quote.BaseView,
		RequiredReporter: quote.RequiredReporter,
		Status:           models.AdStatusPending,
	}
	if len(in.Cities) > 0 {
		ad.Targeting.AdminSelectCities = in.Cities
	}

	if code := strings.TrimSpace(in.CouponCode); code != "" {
		res, err := s.RedeemCoupon(ctx, code, quote.Total)
		if err != nil {
			return models.Advertisement{}, err
		}
		ad.CouponCode = res.Code
		ad.DiscountAmount = res.DiscountAmount
		ad.PaidAmount = res.FinalPrice
	}
	undoCoupon := func(cause error) {
		if ad.CouponCode == "" {
			return
		}
		zap.L().Warn("Releasing coupon", zap.String("code", ad.CouponCode), zap.Error(cause))
		if err := s.store.ReleaseCoupon(ctx, ad.CouponCode); err != nil {
			zap.L().Error("Coupon release failed", zap.String("code", ad.CouponCode), zap.Error(err))
		}
	}

	ad.MediaURLs, err = s.uploadAll(ctx, in.Media, "ads")
	if err != nil {
		undoCoupon(err)
		return models.Advertisement{}, err
	}

	undoPayment, err := s.collectPayment(ctx, actor, in.PaymentMethod, in.Payment, ad.PaidAmount,
		adPaymentRef(ad.ID), "Payment for ad "+ad.ID.Hex(), models.PaymentPurposeAd)
	if err != nil {
		s.discardUploads(ctx, ad.MediaURLs)
		undoCoupon(err)
		return models.Advertisement{}, err
	}
	ad.PaymentMethod = in.PaymentMethod
	ad.PaymentID = in.Payment.PaymentID

	now := s.now()
	ad.CreatedAt = now
	ad.UpdatedAt = now
	if err := s.store.CreateAd(ctx, &ad); err != nil {
		undoPayment(err)
		undoCoupon(err)
		s.discardUploads(ctx, ad.MediaURLs)
		return models.Advertisement{}, storeErr(err, "ad")
	}

	zap.L().Info("Ad created",
		zap.String("ad_id", ad.ID.Hex()),
		zap.String("owner_id", actor.ID.Hex()),
		zap.Int("required_reporter", ad.RequiredReporter),
		zap.String("paid_amount", ad.PaidAmount.String()))
	return ad, nil
}

// collectPayment takes amount by wallet debit or by claiming a captured
// gateway payment. The returned func compensates the payment.
func (s *Service) collectPayment(ctx context.Context, actor Actor, method string, proof GatewayProof, amount decimal.Decimal, ref, description, purpose string) (func(error), error) {
	noop := func(error) {}
	if !amount.IsPositive() {
		return noop, nil
	}
	switch method {
	case models.PaymentMethodWallet:
		entry := LedgerEntry{
			UserID:        actor.ID,
			UserType:      actor.Role,
			Amount:        amount,
			Description:   description,
			CorrelationID: ref,
		}
		if _, err := s.Debit(ctx, entry); err != nil {
			return nil, err
		}
		return func(cause error) { _ = s.reverseDebit(ctx, entry, cause) }, nil
	case models.PaymentMethodGateway:
		rec, err := s.claimGatewayPayment(ctx, actor, proof, amount, purpose)
		if err != nil {
			return nil, err
		}
		return func(cause error) { s.releaseGatewayPayment(ctx, rec.PaymentID, cause) }, nil
	default:
		return nil, validationf("payment_method must be wallet or gateway")
	}
}

type ReviewInput struct {
	Action    string
	Note      string
	Targeting *models.Targeting
}

// ReviewAd applies an admin decision to an ad.
func (s *Service) ReviewAd(ctx context.Context, actor Actor, adID primitive.ObjectID, in ReviewInput) (models.Advertisement, error) {
	if !actor.IsAdmin() {
		return models.Advertisement{}, ErrForbidden
	}
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		return models.Advertisement{}, storeErr(err, "ad")
	}

	switch in.Action {
	case ActionApprove:
		return s.offerAd(ctx, ad, in, []models.AdStatus{models.AdStatusPending}, models.AdStatusApproved)
	case ActionModify:
		return s.offerAd(ctx, ad, in, []models.AdStatus{models.AdStatusPending, models.AdStatusApproved, models.AdStatusModified}, models.AdStatusModified)
	case ActionReject:
		return s.rejectAd(ctx, ad, in.Note)
	default:
		return models.Advertisement{}, validationf("action must be approve, reject or modify")
	}
}

func (s *Service) offerAd(ctx context.Context, ad models.Advertisement, in ReviewInput, from []models.AdStatus, to models.AdStatus) (models.Advertisement, error) {
	pricing, err := s.Pricing(ctx)
	if err != nil {
		return models.Advertisement{}, err
	}

	now := s.now()
	patch := store.AdPatch{Status: &to, AdminNote: &in.Note}
	if ad.ApprovedAt == nil {
		commission, perReporter, err := AdCommission(ad.TotalCost, pricing.AdCommission, ad.RequiredReporter)
		if err != nil {
			return models.Advertisement{}, err
		}
		patch.AdminCommission = &commission
		patch.FinalReporterPrice = &perReporter
		patch.ApprovedAt = &now
	}
	if window := pricing.AcceptWindow(); window > 0 {
		deadline := now.Add(window)
		patch.AcceptBefore = &deadline
	}

	tgt := ad.Targeting
	if in.Targeting != nil {
		tgt = *in.Targeting
	}
	patch.Targeting = &tgt

	pool, err := s.store.ListWorkers(ctx, ad.UserType)
	if err != nil {
		return models.Advertisement{}, storeErr(err, "reporters")
	}
	resolved := targeting.Resolve(targeting.Request{
		Targeting: tgt,
		Origin:    ad.Location,
		Excluded:  ad.ExcludedReporters,
		Role:      ad.UserType,
		Modified:  to == models.AdStatusModified,
	}, pool)
	patch.NotifiedReporters = mergeIDs(ad.NotifiedReporters, resolved.IDs())

	updated, err := s.store.PatchAd(ctx, ad.ID, from, patch)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.Advertisement{}, fmt.Errorf("%w: ad is %s", ErrInvalidTransition, ad.Status)
		}
		return models.Advertisement{}, storeErr(err, "ad")
	}

	if err := s.seedAdOffer(ctx, ad.ID, resolved, to == models.AdStatusModified, now); err != nil {
		// Put the status back so the review can be repeated.
		if _, rerr := s.store.PatchAd(ctx, ad.ID, []models.AdStatus{to}, store.AdPatch{Status: &ad.Status}); rerr != nil {
			zap.L().Error("Ad offer revert failed", zap.String("ad_id", ad.ID.Hex()), zap.Error(rerr))
		}
		return models.Advertisement{}, err
	}

	zap.L().Info("Ad offered",
		zap.String("ad_id", ad.ID.Hex()),
		zap.String("status", string(to)),
		zap.String("rule", string(resolved.Rule)),
		zap.Int("reporters", len(resolved.Reporters)))

	s.notifyAll(ctx, models.Notification{
		Kind:     models.NotifyAdOffered,
		EntityID: ad.ID,
		Subject:  "New ad available",
		Body:     fmt.Sprintf("A new %s ad is available. Accept it before the deadline.", ad.AdType),
	}, resolved.Reporters)
	return updated, nil
}

func (s *Service) seedAdOffer(ctx context.Context, adID primitive.ObjectID, resolved targeting.Result, modified bool, now time.Time) error {
	if _, err := s.store.EnsurePending(ctx, models.KindAd, adID, "", resolved.Reporters, now); err != nil {
		return storeErr(err, "assignments")
	}
	if modified {
		if _, err := s.store.ReopenRejected(ctx, models.KindAd, adID, resolved.IDs(), now); err != nil {
			return storeErr(err, "assignments")
		}
	}
	return nil
}

// rejectAd refunds the advertiser first and then flips the status; the
// refund is reversed if the status change loses a race.
func (s *Service) rejectAd(ctx context.Context, ad models.Advertisement, note string) (models.Advertisement, error) {
	if strings.TrimSpace(note) == "" {
		return models.Advertisement{}, validationf("note is required to reject")
	}
	if ad.Status != models.AdStatusPending {
		return models.Advertisement{}, fmt.Errorf("%w: ad is %s", ErrInvalidTransition, ad.Status)
	}

	refund := LedgerEntry{
		UserID:        ad.OwnerID,
		UserType:      models.RoleAdvertiser,
		Amount:        ad.PaidAmount,
		Description:   "Refund for rejected ad " + ad.ID.Hex(),
		CorrelationID: adRefundRef(ad.ID),
	}
	credited := false
	if refund.Amount.IsPositive() {
		var err error
		if credited, err = s.settle(ctx, "ad_refund", refund); err != nil {
			return models.Advertisement{}, err
		}
	}

	status := models.AdStatusRejected
	updated, err := s.store.PatchAd(ctx, ad.ID, []models.AdStatus{models.AdStatusPending}, store.AdPatch{
		Status:    &status,
		AdminNote: &note,
	})
	if err != nil {
		if credited {
			_ = s.reverseCredit(ctx, refund, err)
		}
		if errors.Is(err, store.ErrConflict) {
			return models.Advertisement{}, fmt.Errorf("%w: ad is no longer pending", ErrInvalidTransition)
		}
		return models.Advertisement{}, storeErr(err, "ad")
	}

	s.notifyUser(ctx, models.Notification{
		Kind:     models.NotifyRefund,
		EntityID: ad.ID,
		Subject:  "Your ad was rejected",
		Body:     fmt.Sprintf("Your ad was rejected: %s. %s has been refunded to your wallet.", note, ad.PaidAmount),
	}, ad.OwnerID)
	return updated, nil
}

// completeAdIfDone moves the ad to completed once every required reporter
// has a completed assignment.
func (s *Service) completeAdIfDone(ctx context.Context, adID primitive.ObjectID) error {
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		return storeErr(err, "ad")
	}
	if ad.Status == models.AdStatusCompleted {
		return nil
	}
	rows, err := s.store.ListByEntity(ctx, models.KindAd, adID)
	if err != nil {
		return storeErr(err, "assignments")
	}
	completed := 0
	for _, a := range rows {
		if a.Status == models.AssignmentCompleted {
			completed++
		}
	}
	if completed < ad.RequiredReporter {
		return nil
	}

	status := models.AdStatusCompleted
	_, err = s.store.PatchAd(ctx, adID, []models.AdStatus{models.AdStatusRunning, models.AdStatusModified}, store.AdPatch{
		Status: &status,
		CompletionDetails: &models.AdCompletion{
			CompletedReporters: completed,
			TotalPaid:          ad.FinalReporterPrice.Mul(decimal.NewFromInt(int64(completed))),
			RefundAmount:       decimal.Zero,
			CompletedAt:        s.now(),
		},
	})
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err != nil {
		return storeErr(err, "ad")
	}
	zap.L().Info("Ad completed", zap.String("ad_id", adID.Hex()), zap.Int("completed_reporters", completed))
	return nil
}

func (s *Service) GetAd(ctx context.Context, actor Actor, adID primitive.ObjectID) (models.Advertisement, error) {
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		return models.Advertisement{}, storeErr(err, "ad")
	}
	if !actor.IsAdmin() && ad.OwnerID != actor.ID {
		if _, err := s.store.GetAssignment(ctx, models.KindAd, adID, actor.ID); err != nil {
			return models.Advertisement{}, ErrNotOwner
		}
	}
	return ad, nil
}

// ListAds returns every ad for admins and the caller's own ads otherwise.
func (s *Service) ListAds(ctx context.Context, actor Actor, status models.AdStatus) ([]models.Advertisement, error) {
	filter := store.AdFilter{Status: status}
	if !actor.IsAdmin() {
		filter.OwnerID = &actor.ID
	}
	ads, err := s.store.ListAds(ctx, filter)
	return ads, storeErr(err, "ads")
}

type ReporterAd struct {
	Ad         models.Advertisement `json:"ad"`
	Assignment models.Assignment    `json:"assignment"`
}

// ListReporterAds returns the ads offered to the reporter with their assignment.
func (s *Service) ListReporterAds(ctx context.Context, actor Actor) ([]ReporterAd, error) {
	rows, err := s.store.ListByReporter(ctx, models.KindAd, actor.ID)
	if err != nil {
		return nil, storeErr(err, "assignments")
	}
	out := make([]ReporterAd, 0, len(rows))
	for _, a := range rows {
		ad, err := s.store.GetAd(ctx, a.EntityID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeErr(err, "ad")
		}
		out = append(out, ReporterAd{Ad: ad, Assignment: a})
	}
	return out, nil
}

// ListAdAssignments returns the per-reporter rows of an ad for its owner or an admin.
func (s *Service) ListAdAssignments(ctx context.Context, actor Actor, adID primitive.ObjectID) ([]models.Assignment, error) {
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		return nil, storeErr(err, "ad")
	}
	if !actor.IsAdmin() && ad.OwnerID != actor.ID {
		return nil, ErrNotOwner
	}
	rows, err := s.store.ListByEntity(ctx, models.KindAd, adID)
	return rows, storeErr(err, "assignments")
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func mergeIDs(a, b []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(a)+len(b))
	out := make([]primitive.ObjectID, 0, len(a)+len(b))
	for _, list := range [][]primitive.ObjectID{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
