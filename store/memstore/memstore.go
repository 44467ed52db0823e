// Package memstore is an in-memory store.Store used by tests and local runs.
// A single lock serialises every call, which gives each method the same
// atomicity the Mongo adapter gets from conditional updates and sessions.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store"
)

type walletKey struct {
	userID   primitive.ObjectID
	userType string
}

type assignmentKey struct {
	kind       models.AssignmentKind
	entityID   primitive.ObjectID
	reporterID primitive.ObjectID
}

type Store struct {
	mu sync.RWMutex

	users       map[primitive.ObjectID]models.User
	wallets     map[walletKey]models.Wallet
	pricing     *models.PricingConfig
	ads         map[primitive.ObjectID]models.Advertisement
	free        map[primitive.ObjectID]models.FreeConference
	paid        map[primitive.ObjectID]models.PaidConference
	codes       map[string]struct{}
	assignments map[assignmentKey]models.Assignment
	coupons     map[string]models.Coupon
	payments    map[string]models.PaymentHistory
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:       make(map[primitive.ObjectID]models.User),
		wallets:     make(map[walletKey]models.Wallet),
		ads:         make(map[primitive.ObjectID]models.Advertisement),
		free:        make(map[primitive.ObjectID]models.FreeConference),
		paid:        make(map[primitive.ObjectID]models.PaidConference),
		codes:       make(map[string]struct{}),
		assignments: make(map[assignmentKey]models.Assignment),
		coupons:     make(map[string]models.Coupon),
		payments:    make(map[string]models.PaymentHistory),
	}
}

// ---------------- USERS ----------------

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, ok := s.users[user.ID]; ok {
		return store.ErrDuplicate
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUser(_ context.Context, id primitive.ObjectID) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListWorkers(_ context.Context, role string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0)
	for _, u := range s.users {
		if u.Verified && u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

// ---------------- WALLETS ----------------

func (s *Store) Credit(_ context.Context, userID primitive.ObjectID, userType string, tx models.WalletTransaction) (models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := walletKey{userID, userType}
	w, ok := s.wallets[key]
	if !ok {
		w = models.Wallet{
			ID:        primitive.NewObjectID(),
			UserID:    userID,
			UserType:  userType,
			CreatedAt: tx.CreatedAt,
		}
	}
	if w.HasCorrelation(tx.CorrelationID) {
		return models.Wallet{}, store.ErrDuplicateTransaction
	}
	w.Balance = w.Balance.Add(tx.Signed())
	w.Transactions = append(cloneTransactions(w.Transactions), tx)
	w.UpdatedAt = tx.CreatedAt
	s.wallets[key] = w
	return cloneWallet(w), nil
}

func (s *Store) Debit(_ context.Context, userID primitive.ObjectID, userType string, tx models.WalletTransaction) (models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := walletKey{userID, userType}
	w, ok := s.wallets[key]
	if !ok {
		return models.Wallet{}, store.ErrInsufficientBalance
	}
	if w.HasCorrelation(tx.CorrelationID) {
		return models.Wallet{}, store.ErrDuplicateTransaction
	}
	if w.Balance.LessThan(tx.Amount) {
		return models.Wallet{}, store.ErrInsufficientBalance
	}
	w.Balance = w.Balance.Add(tx.Signed())
	w.Transactions = append(cloneTransactions(w.Transactions), tx)
	w.UpdatedAt = tx.CreatedAt
	s.wallets[key] = w
	return cloneWallet(w), nil
}

func (s *Store) GetWallet(_ context.Context, userID primitive.ObjectID, userType string) (models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[walletKey{userID, userType}]
	if !ok {
		return models.Wallet{}, store.ErrNotFound
	}
	return cloneWallet(w), nil
}

// ---------------- PRICING ----------------

func (s *Store) GetPricing(_ context.Context) (models.PricingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pricing == nil {
		return models.PricingConfig{}, store.ErrNotFound
	}
	return *s.pricing, nil
}

func (s *Store) SetPricing(_ context.Context, cfg models.PricingConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.ID = models.PricingConfigID
	s.pricing = &cfg
	return nil
}

// ---------------- ADS ----------------

func (s *Store) CreateAd(_ context.Context, ad *models.Advertisement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ad.ID.IsZero() {
		ad.ID = primitive.NewObjectID()
	}
	if _, ok := s.ads[ad.ID]; ok {
		return store.ErrDuplicate
	}
	s.ads[ad.ID] = *ad
	return nil
}

func (s *Store) GetAd(_ context.Context, id primitive.ObjectID) (models.Advertisement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ad, ok := s.ads[id]
	if !ok {
		return models.Advertisement{}, store.ErrNotFound
	}
	return ad, nil
}

func (s *Store) ListAds(_ context.Context, filter store.AdFilter) ([]models.Advertisement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Advertisement, 0)
	for _, ad := range s.ads {
		if filter.OwnerID != nil && ad.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != "" && ad.Status != filter.Status {
			continue
		}
		out = append(out, ad)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) PatchAd(_ context.Context, id primitive.ObjectID, expected []models.AdStatus, patch store.AdPatch) (models.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ad, ok := s.ads[id]
	if !ok {
		return models.Advertisement{}, store.ErrNotFound
	}
	if len(expected) > 0 && !containsStatus(expected, ad.Status) {
		return models.Advertisement{}, store.ErrConflict
	}
	if patch.Status != nil {
		ad.Status = *patch.Status
	}
	if patch.AdminNote != nil {
		ad.AdminNote = *patch.AdminNote
	}
	if patch.Targeting != nil {
		ad.Targeting = *patch.Targeting
	}
	if patch.ApprovedAt != nil {
		ad.ApprovedAt = patch.ApprovedAt
	}
	if patch.AcceptBefore != nil {
		ad.AcceptBefore = patch.AcceptBefore
	}
	if patch.AdminCommission != nil {
		ad.AdminCommission = *patch.AdminCommission
	}
	if patch.FinalReporterPrice != nil {
		ad.FinalReporterPrice = *patch.FinalReporterPrice
	}
	if patch.NotifiedReporters != nil {
		ad.NotifiedReporters = append([]primitive.ObjectID(nil), patch.NotifiedReporters...)
	}
	if patch.CompletionDetails != nil {
		ad.CompletionDetails = patch.CompletionDetails
	}
	ad.UpdatedAt = time.Now()
	s.ads[id] = ad
	return ad, nil
}

// ---------------- CONFERENCES ----------------

func (s *Store) CreateFreeConference(_ context.Context, conf *models.FreeConference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[conf.ConferenceID]; taken {
		return store.ErrDuplicate
	}
	if conf.ID.IsZero() {
		conf.ID = primitive.NewObjectID()
	}
	s.codes[conf.ConferenceID] = struct{}{}
	s.free[conf.ID] = *conf
	return nil
}

func (s *Store) GetFreeConference(_ context.Context, id primitive.ObjectID) (models.FreeConference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conf, ok := s.free[id]
	if !ok {
		return models.FreeConference{}, store.ErrNotFound
	}
	return conf, nil
}

func (s *Store) ListFreeConferences(_ context.Context, filter store.ConferenceFilter) ([]models.FreeConference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FreeConference, 0)
	for _, conf := range s.free {
		if matchConference(conf.Conference, filter) {
			out = append(out, conf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) PatchFreeConference(_ context.Context, id primitive.ObjectID, expected []models.ConferenceStatus, patch store.ConferencePatch) (models.FreeConference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conf, ok := s.free[id]
	if !ok {
		return models.FreeConference{}, store.ErrNotFound
	}
	if len(expected) > 0 && !containsStatus(expected, conf.Status) {
		return models.FreeConference{}, store.ErrConflict
	}
	applyConferencePatch(&conf.Conference, patch)
	s.free[id] = conf
	return conf, nil
}

func (s *Store) CreatePaidConference(_ context.Context, conf *models.PaidConference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[conf.ConferenceID]; taken {
		return store.ErrDuplicate
	}
	if conf.ID.IsZero() {
		conf.ID = primitive.NewObjectID()
	}
	s.codes[conf.ConferenceID] = struct{}{}
	s.paid[conf.ID] = *conf
	return nil
}

func (s *Store) GetPaidConference(_ context.Context, id primitive.ObjectID) (models.PaidConference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conf, ok := s.paid[id]
	if !ok {
		return models.PaidConference{}, store.ErrNotFound
	}
	return conf, nil
}

func (s *Store) ListPaidConferences(_ context.Context, filter store.ConferenceFilter) ([]models.PaidConference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PaidConference, 0)
	for _, conf := range s.paid {
		if matchConference(conf.Conference, filter) {
			out = append(out, conf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) PatchPaidConference(_ context.Context, id primitive.ObjectID, expected []models.ConferenceStatus, patch store.ConferencePatch) (models.PaidConference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conf, ok := s.paid[id]
	if !ok {
		return models.PaidConference{}, store.ErrNotFound
	}
	if len(expected) > 0 && !containsStatus(expected, conf.Status) {
		return models.PaidConference{}, store.ErrConflict
	}
	applyConferencePatch(&conf.Conference, patch)
	if patch.PaymentStatus != nil {
		conf.PaymentStatus = *patch.PaymentStatus
	}
	if patch.CommissionDetails != nil {
		conf.CommissionDetails = patch.CommissionDetails
	}
	if patch.RefundDetails != nil {
		conf.RefundDetails = patch.RefundDetails
	}
	s.paid[id] = conf
	return conf, nil
}

func (s *Store) ExcludeReporter(_ context.Context, kind models.AssignmentKind, id, reporterID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case models.KindFreeConference:
		conf, ok := s.free[id]
		if !ok {
			return store.ErrNotFound
		}
		conf.ExcludedReporters = addID(conf.ExcludedReporters, reporterID)
		s.free[id] = conf
	case models.KindPaidConference:
		conf, ok := s.paid[id]
		if !ok {
			return store.ErrNotFound
		}
		conf.ExcludedReporters = addID(conf.ExcludedReporters, reporterID)
		s.paid[id] = conf
	default:
		ad, ok := s.ads[id]
		if !ok {
			return store.ErrNotFound
		}
		ad.ExcludedReporters = addID(ad.ExcludedReporters, reporterID)
		s.ads[id] = ad
	}
	return nil
}

// ---------------- ASSIGNMENTS ----------------

func (s *Store) EnsurePending(_ context.Context, kind models.AssignmentKind, entityID primitive.ObjectID, entityCode string, reporters []models.User, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range reporters {
		key := assignmentKey{kind, entityID, r.ID}
		if _, ok := s.assignments[key]; ok {
			continue
		}
		s.assignments[key] = models.Assignment{
			ID:         primitive.NewObjectID(),
			Kind:       kind,
			EntityID:   entityID,
			EntityCode: entityCode,
			ReporterID: r.ID,
			IinsafID:   r.IinsafID,
			Status:     models.AssignmentPending,
			TargetedAt: at,
			CreatedAt:  at,
			UpdatedAt:  at,
		}
		inserted++
	}
	return inserted, nil
}

func (s *Store) ReopenRejected(_ context.Context, kind models.AssignmentKind, entityID primitive.ObjectID, reporterIDs []primitive.ObjectID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reopened := 0
	for _, id := range reporterIDs {
		key := assignmentKey{kind, entityID, id}
		a, ok := s.assignments[key]
		if !ok || a.Status != models.AssignmentRejected {
			continue
		}
		a.Status = models.AssignmentPending
		a.Accepted = false
		a.RejectedAt = nil
		a.RejectNote = ""
		a.TargetedAt = at
		a.UpdatedAt = at
		s.assignments[key] = a
		reopened++
	}
	return reopened, nil
}

func (s *Store) GetAssignment(_ context.Context, kind models.AssignmentKind, entityID, reporterID primitive.ObjectID) (models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assignmentKey{kind, entityID, reporterID}]
	if !ok {
		return models.Assignment{}, store.ErrNotFound
	}
	return cloneAssignment(a), nil
}

func (s *Store) ListByEntity(_ context.Context, kind models.AssignmentKind, entityID primitive.ObjectID) ([]models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Assignment, 0)
	for k, a := range s.assignments {
		if k.kind == kind && k.entityID == entityID {
			out = append(out, cloneAssignment(a))
		}
	}
	sortAssignments(out)
	return out, nil
}

func (s *Store) ListByReporter(_ context.Context, kind models.AssignmentKind, reporterID primitive.ObjectID) ([]models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Assignment, 0)
	for k, a := range s.assignments {
		if k.kind == kind && k.reporterID == reporterID {
			out = append(out, cloneAssignment(a))
		}
	}
	sortAssignments(out)
	return out, nil
}

func (s *Store) TransitionAssignment(_ context.Context, t store.Transition) (models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{t.Kind, t.EntityID, t.ReporterID}
	a, ok := s.assignments[key]
	if !ok {
		return models.Assignment{}, store.ErrNotFound
	}
	if !containsStatus(t.From, a.Status) {
		return models.Assignment{}, store.ErrConflict
	}
	if t.FromProof != nil && !containsStatus(t.FromProof, a.ProofStatus()) {
		return models.Assignment{}, store.ErrConflict
	}
	if t.ReleaseSlot && holdsSlot(a.Status) {
		s.releaseSlot(t.Kind, t.EntityID, t.At)
	}
	applyAssignmentPatch(&a, t.Patch, t.At)
	s.assignments[key] = a
	return cloneAssignment(a), nil
}

func (s *Store) ClaimSlot(_ context.Context, claim store.SlotClaim) (store.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{claim.Kind, claim.EntityID, claim.ReporterID}
	a, ok := s.assignments[key]
	if !ok {
		return store.ClaimResult{}, store.ErrNotFound
	}

	var count, quota int
	var filled bool
	switch claim.Kind {
	case models.KindAd:
		ad, ok := s.ads[claim.EntityID]
		if !ok {
			return store.ClaimResult{}, store.ErrNotFound
		}
		if !ad.Status.Open() || ad.Full() {
			return store.ClaimResult{}, store.ErrCapacityReached
		}
		if a.Status != models.AssignmentPending {
			return store.ClaimResult{}, store.ErrConflict
		}
		ad.AcceptReporterCount++
		if ad.Full() && ad.Status == models.AdStatusApproved {
			ad.FilledFrom = ad.Status
			ad.Status = models.AdStatusRunning
			filled = true
		}
		ad.UpdatedAt = claim.At
		s.ads[claim.EntityID] = ad
		count, quota = ad.AcceptReporterCount, ad.RequiredReporter
	case models.KindPaidConference:
		conf, ok := s.paid[claim.EntityID]
		if !ok {
			return store.ClaimResult{}, store.ErrNotFound
		}
		if !conf.Status.Open() || conf.Full() {
			return store.ClaimResult{}, store.ErrCapacityReached
		}
		if a.Status != models.AssignmentPending {
			return store.ClaimResult{}, store.ErrConflict
		}
		conf.AcceptedCount++
		if conf.Full() {
			conf.FilledFrom = conf.Status
			conf.Status = models.ConferenceStatusRunning
			filled = true
		}
		conf.UpdatedAt = claim.At
		s.paid[claim.EntityID] = conf
		count, quota = conf.AcceptedCount, conf.NumberOfReporters
	default:
		return store.ClaimResult{}, store.ErrConflict
	}

	accepted := true
	applyAssignmentPatch(&a, store.AssignmentPatch{
		Status:     models.AssignmentAccepted,
		Accepted:   &accepted,
		AcceptedAt: &claim.At,
		Snapshot:   claim.Snapshot,
	}, claim.At)
	s.assignments[key] = a

	return store.ClaimResult{
		Assignment: cloneAssignment(a),
		Count:      count,
		Quota:      quota,
		Filled:     filled,
	}, nil
}

func (s *Store) RemoveAssignment(_ context.Context, kind models.AssignmentKind, entityID, reporterID primitive.ObjectID) (models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{kind, entityID, reporterID}
	a, ok := s.assignments[key]
	if !ok {
		return models.Assignment{}, store.ErrNotFound
	}
	if a.Status == models.AssignmentCompleted {
		return models.Assignment{}, store.ErrConflict
	}
	if holdsSlot(a.Status) {
		s.releaseSlot(kind, entityID, time.Now())
	}
	delete(s.assignments, key)
	return a, nil
}

// releaseSlot must be called with s.mu held. A running parent goes back to
// the status it filled from.
func (s *Store) releaseSlot(kind models.AssignmentKind, entityID primitive.ObjectID, at time.Time) {
	switch kind {
	case models.KindPaidConference:
		conf, ok := s.paid[entityID]
		if !ok || conf.AcceptedCount == 0 {
			return
		}
		conf.AcceptedCount--
		if conf.Status == models.ConferenceStatusRunning {
			conf.Status = models.ConferenceStatusApproved
			if conf.FilledFrom != "" {
				conf.Status = conf.FilledFrom
			}
		}
		conf.UpdatedAt = at
		s.paid[entityID] = conf
	case models.KindAd:
		ad, ok := s.ads[entityID]
		if !ok || ad.AcceptReporterCount == 0 {
			return
		}
		ad.AcceptReporterCount--
		if ad.Status == models.AdStatusRunning {
			ad.Status = models.AdStatusApproved
			if ad.FilledFrom != "" {
				ad.Status = ad.FilledFrom
			}
		}
		ad.UpdatedAt = at
		s.ads[entityID] = ad
	}
}

// holdsSlot reports whether a row in status counts against the parent quota.
func holdsSlot(status models.AssignmentStatus) bool {
	switch status {
	case models.AssignmentAccepted, models.AssignmentSubmitted, models.AssignmentProofSubmitted, models.AssignmentProofRejected:
		return true
	}
	return false
}

// ---------------- COUPONS ----------------

func (s *Store) CreateCoupon(_ context.Context, coupon *models.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := normalizeCode(coupon.Code)
	if _, ok := s.coupons[code]; ok {
		return store.ErrDuplicate
	}
	if coupon.ID.IsZero() {
		coupon.ID = primitive.NewObjectID()
	}
	coupon.Code = code
	s.coupons[code] = *coupon
	return nil
}

func (s *Store) GetCouponByCode(_ context.Context, code string) (models.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.coupons[normalizeCode(code)]
	if !ok {
		return models.Coupon{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCoupons(_ context.Context) ([]models.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) RedeemCoupon(_ context.Context, code string, now time.Time) (models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code = normalizeCode(code)
	c, ok := s.coupons[code]
	if !ok {
		return models.Coupon{}, store.ErrNotFound
	}
	if c.Status != models.CouponStatusActive || now.Before(c.ValidFrom) || now.After(c.ValidUntil) || c.Exhausted() {
		return models.Coupon{}, store.ErrConflict
	}
	c.UsedCount++
	c.UpdatedAt = now
	s.coupons[code] = c
	return c, nil
}

func (s *Store) ReleaseCoupon(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code = normalizeCode(code)
	c, ok := s.coupons[code]
	if !ok {
		return store.ErrNotFound
	}
	if c.UsedCount > 0 {
		c.UsedCount--
	}
	s.coupons[code] = c
	return nil
}

// ---------------- PAYMENTS ----------------

func (s *Store) RecordPayment(_ context.Context, p *models.PaymentHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[p.PaymentID]; ok {
		return store.ErrDuplicate
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	s.payments[p.PaymentID] = *p
	return nil
}

func (s *Store) GetPayment(_ context.Context, paymentID string) (models.PaymentHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return models.PaymentHistory{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) DeletePayment(_ context.Context, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[paymentID]; !ok {
		return store.ErrNotFound
	}
	delete(s.payments, paymentID)
	return nil
}

func (s *Store) ListPayments(_ context.Context, userID primitive.ObjectID) ([]models.PaymentHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PaymentHistory, 0)
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---------------- HELPERS ----------------

func containsStatus[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func addID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(append([]primitive.ObjectID(nil), ids...), id)
}

func matchConference(c models.Conference, filter store.ConferenceFilter) bool {
	if filter.SubmittedBy != nil && c.SubmittedBy != *filter.SubmittedBy {
		return false
	}
	return filter.Status == "" || c.Status == filter.Status
}

func applyConferencePatch(c *models.Conference, patch store.ConferencePatch) {
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.AdminNote != nil {
		c.AdminNote = *patch.AdminNote
	}
	if patch.Targeting != nil {
		c.Targeting = *patch.Targeting
	}
	if patch.ApprovedAt != nil {
		c.ApprovedAt = patch.ApprovedAt
	}
	if patch.CompletedAt != nil {
		c.CompletedAt = patch.CompletedAt
	}
	if patch.NotifiedReporters != nil {
		c.NotifiedReporters = append([]primitive.ObjectID(nil), patch.NotifiedReporters...)
	}
	c.UpdatedAt = time.Now()
}

func applyAssignmentPatch(a *models.Assignment, p store.AssignmentPatch, at time.Time) {
	a.Status = p.Status
	if p.Accepted != nil {
		a.Accepted = *p.Accepted
	}
	if p.AdProof != nil {
		a.AdProof = *p.AdProof
	}
	if p.AcceptedAt != nil {
		a.AcceptedAt = p.AcceptedAt
	}
	if p.RejectedAt != nil {
		a.RejectedAt = p.RejectedAt
	}
	if p.CompletedAt != nil {
		a.CompletedAt = p.CompletedAt
	}
	if p.RejectNote != nil {
		a.RejectNote = *p.RejectNote
	}
	if p.AdminRejectedBy != nil {
		a.AdminRejectedBy = p.AdminRejectedBy
	}
	if p.AdminRejectedAt != nil {
		a.AdminRejectedAt = p.AdminRejectedAt
	}
	if p.AdminRejectNote != nil {
		a.AdminRejectNote = *p.AdminRejectNote
	}
	if p.Snapshot != nil {
		snap := *p.Snapshot
		a.Snapshot = &snap
	}
	if p.Proof != nil {
		proof := *p.Proof
		a.Proof = &proof
	}
	a.UpdatedAt = at
}

func cloneAssignment(a models.Assignment) models.Assignment {
	if a.Proof != nil {
		proof := *a.Proof
		a.Proof = &proof
	}
	if a.Snapshot != nil {
		snap := *a.Snapshot
		a.Snapshot = &snap
	}
	return a
}

func cloneTransactions(txs []models.WalletTransaction) []models.WalletTransaction {
	return append([]models.WalletTransaction(nil), txs...)
}

func cloneWallet(w models.Wallet) models.Wallet {
	w.Transactions = cloneTransactions(w.Transactions)
	return w
}

func sortAssignments(as []models.Assignment) {
	sort.Slice(as, func(i, j int) bool {
		if !as[i].TargetedAt.Equal(as[j].TargetedAt) {
			return as[i].TargetedAt.Before(as[j].TargetedAt)
		}
		return as[i].ReporterID.Hex() < as[j].ReporterID.Hex()
	})
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
