package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssignmentKind names the parent entity an assignment belongs to.
type AssignmentKind string

const (
	KindAd             AssignmentKind = "ad"
	KindFreeConference AssignmentKind = "free_conference"
	KindPaidConference AssignmentKind = "paid_conference"
)

// AssignmentStatus is the reporter-facing post status.
type AssignmentStatus string

const (
	AssignmentPending        AssignmentStatus = "pending"
	AssignmentAccepted       AssignmentStatus = "accepted"
	AssignmentSubmitted      AssignmentStatus = "submitted"
	AssignmentProofSubmitted AssignmentStatus = "proof_submitted"
	AssignmentCompleted      AssignmentStatus = "completed"
	AssignmentRejected       AssignmentStatus = "rejected"
	AssignmentProofRejected  AssignmentStatus = "proof_rejected"
)

// Responded reports whether the reporter has answered the offer.
func (s AssignmentStatus) Responded() bool {
	return s != AssignmentPending
}

// ProofStatus tracks the admin review of a reporter's proof.
type ProofStatus string

const (
	ProofPending   ProofStatus = "pending"
	ProofApproved  ProofStatus = "approved"
	ProofSubmitted ProofStatus = "submitted"
	ProofCompleted ProofStatus = "completed"
	ProofRejected  ProofStatus = "rejected"
)

// AutoRejectExpiredNote is recorded when a reporter acts after the accept window.
const AutoRejectExpiredNote = "Auto-rejected due to expiry of time"

// AutoRejectProofDeadlineNote is recorded when the initial proof window is missed.
const AutoRejectProofDeadlineNote = "Auto-rejected: proof not submitted within the allowed time after acceptance"

// AutoRejectForceCompleteNote is recorded for reporters dropped by a forced completion.
const AutoRejectForceCompleteNote = "Auto-rejected: conference completed without approved proof"

type Proof struct {
	Screenshot              string      `bson:"screenshot,omitempty" json:"screenshot,omitempty"`
	ChannelName             string      `bson:"channel_name,omitempty" json:"channel_name,omitempty"`
	Platform                string      `bson:"platform,omitempty" json:"platform,omitempty"`
	VideoLink               string      `bson:"video_link,omitempty" json:"video_link,omitempty"`
	Duration                string      `bson:"duration,omitempty" json:"duration,omitempty"`
	Note                    string      `bson:"note,omitempty" json:"note,omitempty"`
	Status                  ProofStatus `bson:"status" json:"status"`
	SubmittedAt             time.Time   `bson:"submitted_at" json:"submitted_at"`
	CompletedTaskScreenshot string      `bson:"completed_task_screenshot,omitempty" json:"completed_task_screenshot,omitempty"`
	CompletionVideoLink     string      `bson:"completion_video_link,omitempty" json:"completion_video_link,omitempty"`
	CompletionViews         int64       `bson:"completion_views,omitempty" json:"completion_views,omitempty"`
	CompletionSubmittedAt   *time.Time  `bson:"completion_submitted_at,omitempty" json:"completion_submitted_at,omitempty"`
	AdminApprovedAt         *time.Time  `bson:"admin_approved_at,omitempty" json:"admin_approved_at,omitempty"`
	AdminRejectNote         string      `bson:"admin_reject_note,omitempty" json:"admin_reject_note,omitempty"`
	ApprovalToken           string      `bson:"approval_token,omitempty" json:"-"`
}

// ConferenceSnapshot freezes conference details at acceptance time.
type ConferenceSnapshot struct {
	Topic    string    `bson:"topic" json:"topic"`
	Date     time.Time `bson:"date" json:"date"`
	Time     string    `bson:"time" json:"time"`
	Location Location  `bson:"location" json:"location"`
}

// Assignment is one reporter's participation in one ad or conference.
// (kind, entity_id, reporter_id) is unique.
type Assignment struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind       AssignmentKind     `bson:"kind" json:"kind"`
	EntityID   primitive.ObjectID `bson:"entity_id" json:"entity_id"`
	EntityCode string             `bson:"entity_code,omitempty" json:"entity_code,omitempty"`
	ReporterID primitive.ObjectID `bson:"reporter_id" json:"reporter_id"`
	IinsafID   string             `bson:"iinsaf_id,omitempty" json:"iinsaf_id,omitempty"`

	Status   AssignmentStatus `bson:"status" json:"status"`
	Accepted bool             `bson:"accepted" json:"accepted"`
	AdProof  bool             `bson:"ad_proof" json:"ad_proof"`

	TargetedAt  time.Time  `bson:"targeted_at" json:"targeted_at"`
	AcceptedAt  *time.Time `bson:"accepted_at,omitempty" json:"accepted_at,omitempty"`
	RejectedAt  *time.Time `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	RejectNote  string     `bson:"reject_note,omitempty" json:"reject_note,omitempty"`

	AdminRejectedBy *primitive.ObjectID `bson:"admin_rejected_by,omitempty" json:"admin_rejected_by,omitempty"`
	AdminRejectedAt *time.Time          `bson:"admin_rejected_at,omitempty" json:"admin_rejected_at,omitempty"`
	AdminRejectNote string              `bson:"admin_reject_note,omitempty" json:"admin_reject_note,omitempty"`

	Snapshot *ConferenceSnapshot `bson:"snapshot,omitempty" json:"snapshot,omitempty"`
	Proof    *Proof              `bson:"proof,omitempty" json:"proof,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ProofStatus returns the proof status, or "" when no proof exists.
func (a Assignment) ProofStatus() ProofStatus {
	if a.Proof == nil {
		return ""
	}
	return a.Proof.Status
}

var assignmentTransitions = map[AssignmentKind]map[AssignmentStatus][]AssignmentStatus{
	KindAd: {
		AssignmentPending:        {AssignmentAccepted, AssignmentRejected},
		AssignmentAccepted:       {AssignmentSubmitted, AssignmentRejected},
		AssignmentSubmitted:      {AssignmentSubmitted, AssignmentProofSubmitted, AssignmentRejected},
		AssignmentProofSubmitted: {AssignmentCompleted, AssignmentProofRejected},
		AssignmentProofRejected:  {AssignmentSubmitted},
	},
	KindFreeConference: {
		AssignmentPending:  {AssignmentAccepted, AssignmentRejected},
		AssignmentAccepted: {AssignmentCompleted},
		AssignmentRejected: {AssignmentPending},
	},
	KindPaidConference: {
		AssignmentPending:  {AssignmentAccepted, AssignmentRejected},
		AssignmentAccepted: {AssignmentCompleted, AssignmentRejected},
		AssignmentRejected: {AssignmentPending},
	},
}

// CanTransition is the single authority on assignment status changes.
func CanTransition(kind AssignmentKind, from, to AssignmentStatus) bool {
	for _, next := range assignmentTransitions[kind][from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor lists every status from which kind may move to to.
func SourcesFor(kind AssignmentKind, to AssignmentStatus) []AssignmentStatus {
	var out []AssignmentStatus
	for from, nexts := range assignmentTransitions[kind] {
		for _, next := range nexts {
			if next == to {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

var proofTransitions = map[ProofStatus][]ProofStatus{
	"":             {ProofPending},
	ProofPending:   {ProofPending, ProofApproved, ProofRejected},
	ProofRejected:  {ProofPending, ProofApproved},
	ProofApproved:  {ProofSubmitted},
	ProofSubmitted: {ProofCompleted, ProofRejected},
}

// CanTransitionProof is the single authority on proof status changes.
func CanTransitionProof(from, to ProofStatus) bool {
	for _, next := range proofTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
