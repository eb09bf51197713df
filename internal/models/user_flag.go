package models

import "time"

// UserFlag tracks moderation strikes for a user under user_flags/{uid}.
type UserFlag struct {
	UserID       string    `json:"userId" firestore:"userId" bson:"userId"`
	Strikes      int       `json:"strikes" firestore:"strikes" bson:"strikes"`
	LastStrikeAt time.Time `json:"lastStrikeAt" firestore:"lastStrikeAt" bson:"lastStrikeAt"`
	UpdatedAt    time.Time `json:"updatedAt" firestore:"updatedAt" bson:"updatedAt"`
}

func (f *UserFlag) Fields() map[string]interface{} {
	return map[string]interface{}{
		"userId":       f.UserID,
		"strikes":      f.Strikes,
		"lastStrikeAt": f.LastStrikeAt,
		"updatedAt":    f.UpdatedAt,
	}
}
