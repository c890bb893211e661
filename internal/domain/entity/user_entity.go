package entity

import (
	"time"
)

// Gender is the enumerated profile gender. The zero value means unset.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Valid reports whether g is unset or one of the known values.
func (g Gender) Valid() bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// User is the aggregate root for the identity store.
// Email is stored lower-cased and doubles as Username; Password holds the
// bcrypt hash.
type User struct {
	ID          int64
	Email       string
	Username    string
	Password    string
	Name        string
	Gender      Gender
	PhoneNumber string
	AvatarURL   string
	IsStaff     bool
	IsSuperuser bool
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Touch keeps Username in sync with Email. Repositories call it on every save.
func (u *User) Touch() {
	u.Username = u.Email
}
