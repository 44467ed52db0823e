package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	NotifyAdOffered         = "ad_offered"
	NotifyConferenceOffered = "conference_offered"
	NotifyProofReviewed     = "proof_reviewed"
	NotifyPayout            = "payout"
	NotifyRefund            = "refund"
)

// Notification is a fire-and-forget message for one recipient.
type Notification struct {
	Kind      string
	EntityID  primitive.ObjectID
	Recipient User
	Subject   string
	Body      string
}
