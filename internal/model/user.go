package model

import "time"

// User is the activity facet of an identity-service user. The core only
// reads it and writes last_active.
type User struct {
	ID         int64     `db:"id" json:"id"`
	Email      string    `db:"email" json:"-"`
	IsActive   bool      `db:"is_active" json:"isActive"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	LastActive time.Time `db:"last_active" json:"lastActive"`
}

type Profile struct {
	ID     int64  `db:"id" json:"id"`
	UserID int64  `db:"user_id" json:"userId"`
	Name   string `db:"name" json:"name"`
	Age    int    `db:"age" json:"age"`
	Gender string `db:"gender" json:"gender"`
	Bio    string `db:"bio" json:"bio"`

	// Personality traits on a 0-10 scale
	Extroversion      int `db:"extroversion" json:"extroversion"`
	Openness          int `db:"openness" json:"openness"`
	Conscientiousness int `db:"conscientiousness" json:"conscientiousness"`
	Agreeableness     int `db:"agreeableness" json:"agreeableness"`
	Neuroticism       int `db:"neuroticism" json:"neuroticism"`

	LookingFor string `db:"looking_for" json:"lookingFor"`
	MinAge     int    `db:"min_age" json:"minAge"`
	MaxAge     int    `db:"max_age" json:"maxAge"`
}

type Interest struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Category string `db:"category" json:"category"`
}

// Candidate is a user with the profile and interests needed for scoring.
type Candidate struct {
	User      User
	Profile   Profile
	Interests []Interest
}
