package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleAdvertiser = "advertiser"
	RoleReporter   = "reporter"
	RoleInfluencer = "influencer"
	RolePress      = "press"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Admin sections an admin can be assigned to.
const (
	SectionAds         = "ads"
	SectionConferences = "conferences"
	SectionWallet      = "wallet"
	SectionPricing     = "pricing"
)

// User is the account record. Reporters and influencers form the targeting pool.
type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name             string             `bson:"name" json:"name"`
	Email            string             `bson:"email" json:"email"`
	Phone            string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Role             string             `bson:"role" json:"role"`
	Verified         bool               `bson:"verified" json:"verified"`
	IinsafID         string             `bson:"iinsaf_id,omitempty" json:"iinsaf_id,omitempty"`
	State            string             `bson:"state,omitempty" json:"state,omitempty"`
	City             string             `bson:"city,omitempty" json:"city,omitempty"`
	AssignedSections []string           `bson:"assigned_sections,omitempty" json:"assigned_sections,omitempty"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsWorkerRole reports whether role can be targeted for assignments.
func IsWorkerRole(role string) bool {
	return role == RoleReporter || role == RoleInfluencer
}
