package models

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Address is the optional postal address kept on a user record.
type Address struct {
	Street     string `bson:"street,omitempty" json:"street,omitempty"`
	City       string `bson:"city,omitempty" json:"city,omitempty"`
	PostalCode string `bson:"postalCode,omitempty" json:"postalCode,omitempty"`
	Country    string `bson:"country,omitempty" json:"country,omitempty"`
}

// User represents an application user. A nil PasswordHash marks an account
// that can only sign in through the external provider.
type User struct {
	ID           int64     `bson:"_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash *string   `bson:"passwordHash,omitempty" json:"-"`
	Role         string    `bson:"role" json:"role"`
	ExternalID   *string   `bson:"externalId,omitempty" json:"-"`
	Address      *Address  `bson:"address,omitempty" json:"address,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) HasPassword() bool { return u.PasswordHash != nil && *u.PasswordHash != "" }

func (u *User) IsLinked() bool { return u.ExternalID != nil && *u.ExternalID != "" }

// ExternalProfile is what the OAuth provider tells us about a person.
type ExternalProfile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}
