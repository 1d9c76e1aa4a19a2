package cache

// Cache keys. Every read path owns exactly one key; write paths delete the
// keys whose snapshot they change.
const (
	AllBlogsKey = "allblogs"
	PopularKey  = "popular"
)

func UserKey(username string) string { return "user:" + username }
func ProfileKey(username string) string { return "profile:" + username }
func ProfilePicKey(username string) string { return "profile_pic:" + username }

func BlogKey(id string) string { return "blog:" + id }
func CategoryKey(category string) string { return "category:" + category }
func UserBlogKey(username string) string { return "userblog:" + username }
func CommentsKey(blogID string) string { return "comments:" + blogID }
func AuthorCommentsKey(author string) string { return "authorcomments:" + author }

func LikesSavedKey(blogID, username string) string {
	return "likesSaved:" + blogID + ":" + username
}

func SavedBlogKey(username string) string { return "savedblog:" + username }
func RecentlySavedKey(username string) string { return "recentlySaved:" + username }
func CategoryInfoKey(category string) string { return "categoryInfo:" + category }
