package model

// Category is created lazily the first time someone follows it.
type Category struct {
	Name       string   `json:"name"       bson:"name"`
	FollowedBy []string `json:"followedBy" bson:"followed_by"`
}

// Listing buckets with special meaning.
const (
	CategoryHealth = "Health"
	CategoryOthers = "Others"
)

// healthGroup is listed under the Health bucket.
var healthGroup = []string{"Health", "Personal Development"}

// KnownCategories is the fixed set the frontend offers. Anything outside it
// shows up under Others.
var KnownCategories = []string{
	"Health",
	"Personal Development",
	"Technology",
	"Science",
	"Business",
	"Automobile",
}

// CategoryMatch describes which blog categories a listing bucket contains.
// Exactly one of In / NotIn is non-empty.
type CategoryMatch struct {
	In    []string
	NotIn []string
}

// MatchForBucket resolves a requested listing bucket into a category filter.
func MatchForBucket(bucket string) CategoryMatch {
	switch bucket {
	case CategoryHealth:
		return CategoryMatch{In: append([]string(nil), healthGroup...)}
	case CategoryOthers:
		return CategoryMatch{NotIn: append([]string(nil), KnownCategories...)}
	default:
		return CategoryMatch{In: []string{bucket}}
	}
}

// Matches reports whether a blog in category belongs to the bucket.
func (m CategoryMatch) Matches(category string) bool {
	if len(m.In) > 0 {
		return contains(m.In, category)
	}
	return !contains(m.NotIn, category)
}

// BucketsFor lists every listing bucket a blog in category appears in. A
// write to such a blog must invalidate all of them.
func BucketsFor(category string) []string {
	buckets := []string{category}
	if category != CategoryHealth && contains(healthGroup, category) {
		buckets = append(buckets, CategoryHealth)
	}
	if !contains(KnownCategories, category) && category != CategoryOthers {
		buckets = append(buckets, CategoryOthers)
	}
	return buckets
}
