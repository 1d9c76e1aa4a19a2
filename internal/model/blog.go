package model

import "time"

// Blog is a published post together with its engagement state.
//
// Comments and likes are embedded: they have no lifecycle outside the blog.
// Visitors is the debounce list for view counting and is never serialized to
// clients or to the cache.
type Blog struct {
	ID           string     `json:"id"           bson:"_id"`
	Author       string     `json:"author"       bson:"author"`
	AuthorImg    string     `json:"authorImg"    bson:"author_img"`
	AuthorID     string     `json:"authorId"     bson:"author_id"`
	Image        string     `json:"image"        bson:"blog_image"`
	Title        string     `json:"title"        bson:"title"`
	Body         string     `json:"body"         bson:"body"`
	Tags         []string   `json:"tags"         bson:"tags"`
	Category     string     `json:"category"     bson:"category"`
	Comments     []Comment  `json:"comments"     bson:"comments"`
	Likes        Likes      `json:"likes"        bson:"likes"`
	Views        int64      `json:"views"        bson:"views"`
	LastViewedAt *time.Time `json:"lastViewedAt" bson:"last_viewed_at,omitempty"`
	Visitors     []string   `json:"-"            bson:"visitors"`
	IsPrivate    bool       `json:"isPrivate"    bson:"is_private"`
	CreatedAt    time.Time  `json:"createdAt"    bson:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt"    bson:"updated_at"`
}

// Likes mirrors the {likedBy: [...]} shape the frontend already consumes.
type Likes struct {
	LikedBy []string `json:"likedBy" bson:"likedby"`
}

// Comment is embedded in its parent blog.
type Comment struct {
	ID       string    `json:"id"       bson:"id"`
	Username string    `json:"username" bson:"username"`
	UserImg  string    `json:"userImg"  bson:"user_img"`
	Comment  string    `json:"comment"  bson:"comment"`
	Date     time.Time `json:"date"     bson:"date"`
}

// LikedBy reports whether username has liked the blog.
func (b *Blog) LikedBy(username string) bool {
	return contains(b.Likes.LikedBy, username)
}

// Engagement is the per-user view of a blog's likes and comments.
type Engagement struct {
	Likes    Likes     `json:"likes"`
	Comments []Comment `json:"comments"`
	IsLiked  bool      `json:"isLiked"`
}

// LikeSaveStatus answers "has this user liked / saved this blog".
type LikeSaveStatus struct {
	Liked bool `json:"liked"`
	Saved bool `json:"saved"`
}

// RecentlySaved is the sidebar payload: the first saved blogs, every saved
// id and the user's avatar.
type RecentlySaved struct {
	Blogs      []Blog   `json:"recentlySaved"`
	BlogIDs    []string `json:"blogIds"`
	ProfilePic string   `json:"profilePic"`
}
