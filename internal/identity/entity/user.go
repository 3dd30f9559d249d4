package entity

import "time"

// User represents one canonical identity in the `users` table.
//
// PrimaryID is the stable identifier every derived aggregate is keyed
// on; it is generated once at provisioning and never reused.
// ExternalAuthID is issued by the identity provider at signup and may
// be absent for service accounts. Activity producers reference a user
// by either identifier, which is why read paths resolve through the
// identity service instead of trusting the raw ref.
type User struct {
	PrimaryID      string     `db:"primary_id" json:"primary_id"`
	ExternalAuthID *string    `db:"external_auth_id" json:"external_auth_id,omitempty"`
	DisplayName    string     `db:"display_name" json:"display_name"`
	Status         string     `db:"status" json:"status"` // active / merged
	MergedInto     *string    `db:"merged_into" json:"merged_into,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	MergedAt       *time.Time `db:"merged_at" json:"merged_at,omitempty"`
}

// MergeRecord is one row of the identity merge audit log. Merges are
// explicit operator actions, never something a read path does on its
// own.
type MergeRecord struct {
	ID                 string    `db:"id" json:"id"`
	SurvivorPrimaryID  string    `db:"survivor_primary_id" json:"survivor_primary_id"`
	DuplicatePrimaryID string    `db:"duplicate_primary_id" json:"duplicate_primary_id"`
	Operator           string    `db:"operator" json:"operator"`
	Note               string    `db:"note" json:"note,omitempty"`
	MergedAt           time.Time `db:"merged_at" json:"merged_at"`
}
