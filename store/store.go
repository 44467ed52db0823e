// Package store defines the persistence contracts used by the marketplace
// services. Implementations live in store/mongostore and store/memstore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

var (
	ErrNotFound             = errors.New("store: not found")
	ErrDuplicate            = errors.New("store: duplicate key")
	ErrConflict             = errors.New("store: precondition failed")
	ErrCapacityReached      = errors.New("store: capacity reached")
	ErrInsufficientBalance  = errors.New("store: insufficient balance")
	ErrDuplicateTransaction = errors.New("store: duplicate transaction")
)

type Users interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error)
	// ListWorkers returns verified users holding role.
	ListWorkers(ctx context.Context, role string) ([]models.User, error)
}

// Wallets mutates one wallet document per call. Balance and the appended
// transaction change together or not at all.
type Wallets interface {
	Credit(ctx context.Context, userID primitive.ObjectID, userType string, tx models.WalletTransaction) (models.Wallet, error)
	Debit(ctx context.Context, userID primitive.ObjectID, userType string, tx models.WalletTransaction) (models.Wallet, error)
	GetWallet(ctx context.Context, userID primitive.ObjectID, userType string) (models.Wallet, error)
}

type Pricing interface {
	GetPricing(ctx context.Context) (models.PricingConfig, error)
	SetPricing(ctx context.Context, cfg models.PricingConfig) error
}

// AdPatch lists the ad fields an update may set. Nil fields are left alone.
type AdPatch struct {
	Status             *models.AdStatus
	AdminNote          *string
	Targeting          *models.Targeting
	ApprovedAt         *time.Time
	AcceptBefore       *time.Time
	AdminCommission    *decimal.Decimal
	FinalReporterPrice *decimal.Decimal
	NotifiedReporters  []primitive.ObjectID
	CompletionDetails  *models.AdCompletion
}

type AdFilter struct {
	OwnerID *primitive.ObjectID
	Status  models.AdStatus
}

type Ads interface {
	CreateAd(ctx context.Context, ad *models.Advertisement) error
	GetAd(ctx context.Context, id primitive.ObjectID) (models.Advertisement, error)
	ListAds(ctx context.Context, filter AdFilter) ([]models.Advertisement, error)
	// PatchAd applies patch only while the ad is in one of expected.
	// It returns ErrConflict when the status no longer matches.
	PatchAd(ctx context.Context, id primitive.ObjectID, expected []models.AdStatus, patch AdPatch) (models.Advertisement, error)
}

// ConferencePatch lists the conference fields an update may set.
type ConferencePatch struct {
	Status            *models.ConferenceStatus
	AdminNote         *string
	Targeting         *models.Targeting
	ApprovedAt        *time.Time
	CompletedAt       *time.Time
	NotifiedReporters []primitive.ObjectID
	PaymentStatus     *string
	CommissionDetails *models.CommissionDetails
	RefundDetails     *models.RefundDetails
}

type ConferenceFilter struct {
	SubmittedBy *primitive.ObjectID
	Status      models.ConferenceStatus
}

type Conferences interface {
	// CreateFreeConference returns ErrDuplicate when the conference code is taken.
	CreateFreeConference(ctx context.Context, conf *models.FreeConference) error
	GetFreeConference(ctx context.Context, id primitive.ObjectID) (models.FreeConference, error)
	ListFreeConferences(ctx context.Context, filter ConferenceFilter) ([]models.FreeConference, error)
	PatchFreeConference(ctx context.Context, id primitive.ObjectID, expected []models.ConferenceStatus, patch ConferencePatch) (models.FreeConference, error)

	CreatePaidConference(ctx context.Context, conf *models.PaidConference) error
	GetPaidConference(ctx context.Context, id primitive.ObjectID) (models.PaidConference, error)
	ListPaidConferences(ctx context.Context, filter ConferenceFilter) ([]models.PaidConference, error)
	// PatchPaidConference only touches the keys set in patch, so CommissionDetails
	// is written at most once by callers passing a nil pointer afterwards.
	PatchPaidConference(ctx context.Context, id primitive.ObjectID, expected []models.ConferenceStatus, patch ConferencePatch) (models.PaidConference, error)

	// ExcludeReporter permanently bars reporterID from the conference.
	ExcludeReporter(ctx context.Context, kind models.AssignmentKind, id, reporterID primitive.ObjectID) error
}

// AssignmentPatch lists the assignment fields a transition may set.
type AssignmentPatch struct {
	Status          models.AssignmentStatus
	Accepted        *bool
	AdProof         *bool
	AcceptedAt      *time.Time
	RejectedAt      *time.Time
	CompletedAt     *time.Time
	RejectNote      *string
	AdminRejectedBy *primitive.ObjectID
	AdminRejectedAt *time.Time
	AdminRejectNote *string
	Snapshot        *models.ConferenceSnapshot
	Proof           *models.Proof
}

// Transition is a compare-and-swap on one assignment row.
type Transition struct {
	Kind       models.AssignmentKind
	EntityID   primitive.ObjectID
	ReporterID primitive.ObjectID
	// From lists the statuses the row must currently hold.
	From []models.AssignmentStatus
	// FromProof, when non-nil, additionally constrains the proof status.
	// The empty status matches a row with no proof.
	FromProof []models.ProofStatus
	Patch     AssignmentPatch
	At        time.Time
	// ReleaseSlot returns the row's quota slot to the parent. A running
	// parent drops back to approved so the slot can be claimed again.
	ReleaseSlot bool
}

// SlotClaim accepts a pending assignment while atomically taking one unit
// of the parent's reporter quota.
type SlotClaim struct {
	Kind       models.AssignmentKind
	EntityID   primitive.ObjectID
	ReporterID primitive.ObjectID
	Snapshot   *models.ConferenceSnapshot
	At         time.Time
}

type ClaimResult struct {
	Assignment models.Assignment
	Count      int
	Quota      int
	// Filled is true when this claim took the last slot and moved the parent to running.
	Filled bool
}

type Assignments interface {
	// EnsurePending inserts a pending row for every reporter that has none.
	// Existing rows are left untouched. It returns the number inserted.
	EnsurePending(ctx context.Context, kind models.AssignmentKind, entityID primitive.ObjectID, entityCode string, reporters []models.User, at time.Time) (int, error)
	// ReopenRejected moves rejected rows of the given reporters back to pending.
	ReopenRejected(ctx context.Context, kind models.AssignmentKind, entityID primitive.ObjectID, reporterIDs []primitive.ObjectID, at time.Time) (int, error)
	GetAssignment(ctx context.Context, kind models.AssignmentKind, entityID, reporterID primitive.ObjectID) (models.Assignment, error)
	ListByEntity(ctx context.Context, kind models.AssignmentKind, entityID primitive.ObjectID) ([]models.Assignment, error)
	ListByReporter(ctx context.Context, kind models.AssignmentKind, reporterID primitive.ObjectID) ([]models.Assignment, error)
	// TransitionAssignment returns ErrNotFound when the row is absent and
	// ErrConflict when its current status does not satisfy the transition.
	TransitionAssignment(ctx context.Context, t Transition) (models.Assignment, error)
	// ClaimSlot returns ErrCapacityReached when the parent is full or closed
	// and ErrConflict when the reporter already responded.
	ClaimSlot(ctx context.Context, claim SlotClaim) (ClaimResult, error)
	// RemoveAssignment deletes a non-completed row, releasing its slot when
	// it held one.
	RemoveAssignment(ctx context.Context, kind models.AssignmentKind, entityID, reporterID primitive.ObjectID) (models.Assignment, error)
}

type Coupons interface {
	CreateCoupon(ctx context.Context, coupon *models.Coupon) error
	GetCouponByCode(ctx context.Context, code string) (models.Coupon, error)
	ListCoupons(ctx context.Context) ([]models.Coupon, error)
	// RedeemCoupon increments used_count only if the coupon is active, inside
	// its validity window at now, and below its usage limit.
	RedeemCoupon(ctx context.Context, code string, now time.Time) (models.Coupon, error)
	// ReleaseCoupon undoes one redemption.
	ReleaseCoupon(ctx context.Context, code string) error
}

type Payments interface {
	// RecordPayment returns ErrDuplicate when the payment id was already recorded.
	RecordPayment(ctx context.Context, p *models.PaymentHistory) error
	GetPayment(ctx context.Context, paymentID string) (models.PaymentHistory, error)
	DeletePayment(ctx context.Context, paymentID string) error
	ListPayments(ctx context.Context, userID primitive.ObjectID) ([]models.PaymentHistory, error)
}

// Store is everything the services need from persistence.
type Store interface {
	Users
	Wallets
	Pricing
	Ads
	Conferences
	Assignments
	Coupons
	Payments
}
