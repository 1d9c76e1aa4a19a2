// Package model defines the records persisted by the record store and the
// snapshots serialized into the cache.
//
// Every type carries json tags (HTTP responses and cache values) and bson tags
// (document store). The sqlite backend maps columns by hand.
package model

import "time"

// DefaultProfilePic is assigned to every new profile until the user uploads
// their own avatar URL.
const DefaultProfilePic = "https://static.vecteezy.com/system/resources/previews/009/734/564/original/default-avatar-profile-icon-of-social-media-user-vector.jpg"

// Account is the identity record created on registration.
//
// Username is mirrored into Profile.Name and denormalized into blogs,
// comments, likes and category followers. Renaming goes through
// service.ProfileService.Update which fans the new name out to all of them.
type Account struct {
	ID             string     `json:"id"        bson:"_id"`
	Username       string     `json:"username"  bson:"username"`
	Email          string     `json:"email"     bson:"email"`
	PasswordHash   string     `json:"-"         bson:"password_hash"`
	ResetToken     string     `json:"-"         bson:"reset_token,omitempty"`
	ResetExpiresAt *time.Time `json:"-"         bson:"reset_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updated_at"`
}

// PublicAccount is the projection of an Account that is safe to cache and
// return to anonymous callers.
type PublicAccount struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips credentials.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
}

// Profile is the display-facing side of an account, keyed by Name.
type Profile struct {
	ID             string   `json:"id"             bson:"_id"`
	Name           string   `json:"name"           bson:"name"`
	ProfilePic     string   `json:"profilePic"     bson:"profile_pic"`
	PhoneNo        string   `json:"phoneNo"        bson:"phoneno"`
	Bio            string   `json:"bio"            bson:"bio"`
	Instagram      string   `json:"instagram"      bson:"instagram"`
	LinkedIn       string   `json:"linkedin"       bson:"linkedin"`
	SavedBlogs     []string `json:"savedBlogs"     bson:"saved_blogs"`
	FollowedTopics []string `json:"followedTopics" bson:"followed_topics"`
}

// HasSaved reports whether blogID is in the profile's saved list.
func (p *Profile) HasSaved(blogID string) bool {
	return contains(p.SavedBlogs, blogID)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
