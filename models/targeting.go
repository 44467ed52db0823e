package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Targeting is the admin-configured reporter selection for an ad or conference.
type Targeting struct {
	AllStates          bool                 `bson:"all_states" json:"all_states"`
	AdminSelectState   []string             `bson:"admin_select_state,omitempty" json:"admin_select_state,omitempty"`
	AdminSelectCities  []string             `bson:"admin_select_cities,omitempty" json:"admin_select_cities,omitempty"`
	AdminSelectPincode string               `bson:"admin_select_pincode,omitempty" json:"admin_select_pincode,omitempty"`
	ReporterIDs        []primitive.ObjectID `bson:"reporter_id,omitempty" json:"reporter_id,omitempty"`
}

// IsZero reports whether no targeting rule has been configured.
func (t Targeting) IsZero() bool {
	return !t.AllStates &&
		len(t.AdminSelectState) == 0 &&
		len(t.AdminSelectCities) == 0 &&
		t.AdminSelectPincode == "" &&
		len(t.ReporterIDs) == 0
}

type Location struct {
	State    string `bson:"state" json:"state" binding:"required"`
	City     string `bson:"city" json:"city" binding:"required"`
	Place    string `bson:"place,omitempty" json:"place,omitempty"`
	Landmark string `bson:"landmark,omitempty" json:"landmark,omitempty"`
	Pincode  string `bson:"pincode,omitempty" json:"pincode,omitempty"`
}
