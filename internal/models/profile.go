package models

import "strings"

const (
	UnknownFirstName   = "Unknown"
	DefaultAboutMe     = "Hello, I'm New Here"
	NoEmailPlaceholder = "No email provided"
)

// Profile is the per-account record stored under users/{uid}. The document id
// is the auth-assigned UID and is never part of the stored fields.
type Profile struct {
	ID             string `json:"id" firestore:"-" bson:"-"`
	FirstName      string `json:"firstName" firestore:"firstName" bson:"firstName"`
	LastName       string `json:"lastName" firestore:"lastName" bson:"lastName"`
	Email          string `json:"email" firestore:"email" bson:"email"`
	AboutMe        string `json:"aboutMe,omitempty" firestore:"aboutMe,omitempty" bson:"aboutMe,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty" firestore:"profilePicture,omitempty" bson:"profilePicture,omitempty"`
}

// DisplayName is the first name (or a placeholder) followed by the last name when present.
func (p *Profile) DisplayName() string {
	first := strings.TrimSpace(p.FirstName)
	if first == "" {
		first = UnknownFirstName
	}
	if last := strings.TrimSpace(p.LastName); last != "" {
		return first + " " + last
	}
	return first
}

func (p *Profile) AboutMeText() string {
	if p.AboutMe == "" {
		return DefaultAboutMe
	}
	return p.AboutMe
}

// ProfileUpdate is a merge patch; nil fields are left untouched.
type ProfileUpdate struct {
	AboutMe        *string `json:"aboutMe"`
	ProfilePicture *string `json:"profilePicture"`
}

// Fields returns only the fields set on the patch, keyed by document field name.
func (u ProfileUpdate) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if u.AboutMe != nil {
		fields["aboutMe"] = *u.AboutMe
	}
	if u.ProfilePicture != nil {
		fields["profilePicture"] = *u.ProfilePicture
	}
	return fields
}

// ProfileView is what the profile page renders for the signed-in user.
type ProfileView struct {
	ID             string `json:"id"`
	FirstName      string `json:"firstName"`
	DisplayName    string `json:"displayName"`
	Email          string `json:"email"`
	AboutMe        string `json:"aboutMe"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Loaded         bool   `json:"loaded"`
}

// NewProfileView renders display fields, falling back to placeholders when the
// profile could not be loaded.
func NewProfileView(userID, email string, p *Profile) ProfileView {
	if p == nil {
		return ProfileView{
			ID:          userID,
			FirstName:   UnknownFirstName,
			DisplayName: UnknownFirstName,
			Email:       email,
			AboutMe:     DefaultAboutMe,
		}
	}
	first := p.FirstName
	if first == "" {
		first = UnknownFirstName
	}
	return ProfileView{
		ID:             userID,
		FirstName:      first,
		DisplayName:    p.DisplayName(),
		Email:          p.Email,
		AboutMe:        p.AboutMeText(),
		ProfilePicture: p.ProfilePicture,
		Loaded:         true,
	}
}

type UpdateAboutMeRequest struct {
	AboutMe *string `json:"aboutMe"`
}
