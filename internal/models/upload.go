package models

import "time"

const NoSocialUsername = "Not Provided"

// UploadRecord is an immutable log entry in user_uploads. Field keys match the
// documents already written by the web client.
type UploadRecord struct {
	ID             string    `json:"id" firestore:"-" bson:"-"`
	OwnerID        string    `json:"userId" firestore:"userId" bson:"userId"`
	OwnerFirstName string    `json:"username" firestore:"username" bson:"username"`
	OwnerEmail     string    `json:"email" firestore:"email" bson:"email"`
	SocialUsername string    `json:"socialUsername,omitempty" firestore:"socialUsername,omitempty" bson:"socialUsername,omitempty"`
	ImageURL       string    `json:"image" firestore:"image" bson:"image"`
	ThumbnailURL   string    `json:"thumbnail" firestore:"thumbnail" bson:"thumbnail"`
	DeleteURL      *string   `json:"delete_url" firestore:"delete_url" bson:"delete_url"`
	CreatedAt      time.Time `json:"timestamp" firestore:"timestamp" bson:"timestamp"`
}

// Fields returns the document body. The timestamp is supplied by the caller so
// that stores can substitute their own server time.
func (r *UploadRecord) Fields(timestamp interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"userId":    r.OwnerID,
		"username":  r.OwnerFirstName,
		"email":     r.OwnerEmail,
		"image":     r.ImageURL,
		"thumbnail": r.ThumbnailURL,
		"timestamp": timestamp,
	}
	if r.DeleteURL != nil {
		fields["delete_url"] = *r.DeleteURL
	} else {
		fields["delete_url"] = nil
	}
	if r.SocialUsername != "" {
		fields["socialUsername"] = r.SocialUsername
	}
	return fields
}

// UploadEvent is published after an upload record has been written.
type UploadEvent struct {
	RecordID  string    `json:"recordId"`
	UserID    string    `json:"userId"`
	ImageURL  string    `json:"imageUrl"`
	Variant   string    `json:"variant"`
	CreatedAt time.Time `json:"createdAt"`
}
