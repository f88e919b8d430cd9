package models

import (
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // empty means the account has no usable password
	ImageURL     *string   `json:"image"`
	IsStaff      bool      `json:"-"`
	IsActive     bool      `json:"-"`
	AppleID      *string   `json:"-"`
	ResetCode    *string   `json:"-"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// HasUsablePassword is false for accounts created through social sign-in.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}

type Emotion struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Ratings are the four bounded answers of a therapy-info submission.
type Ratings struct {
	ImageValue          int `json:"image_value"`
	GeneralEmotionValue int `json:"general_emotion_value"`
	RevaluationOne      int `json:"revaluation_one"`
	RevaluationTwo      int `json:"revaluation_two"`
}

// Scores is a user's current self-assessment. One per user.
type Scores struct {
	ID        string
	UserID    string
	Ratings   Ratings
	Emotions  []Emotion
	UpdatedAt time.Time
}

// ScoreRecord is an immutable snapshot of a Scores write.
type ScoreRecord struct {
	ID        string
	UserID    string
	Ratings   Ratings
	Emotions  []Emotion
	CreatedAt time.Time
}

func EmotionNames(emotions []Emotion) []string {
	names := make([]string, len(emotions))
	for i, e := range emotions {
		names[i] = e.Name
	}
	return names
}

func EmotionIDs(emotions []Emotion) []int64 {
	ids := make([]int64, len(emotions))
	for i, e := range emotions {
		ids[i] = e.ID
	}
	return ids
}

type Subscription struct {
	ID          string
	UserID      string
	Plan        string
	Amount      Money
	ExpiryDate  time.Time
	IsActive    bool
	PaymentDate time.Time
	Description string
	PlanMapID   int
	CreatedAt   time.Time
}

type Contact struct {
	ID        string
	Name      string
	Email     string
	Message   string
	Encrypted bool // Message holds KMS ciphertext
	CreatedAt time.Time
}
