package posts

import "time"

type Author struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Post struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	User        Author    `json:"user"`
	LikesCount  int64     `json:"likes_count"`
	IsLiked     bool      `json:"is_liked"`
	IsOwner     bool      `json:"is_owner"`
	ImageURLs   []string  `json:"image_urls"`
}

// CreatePostRequest may pin the content type of each image key; a pinned
// upload URL only accepts that Content-Type.
type CreatePostRequest struct {
	Description  string            `json:"description"`
	ImageKeys    []string          `json:"image_keys"`
	ContentTypes map[string]string `json:"content_types,omitempty"`
}

// CreatedPost carries one presigned upload URL per requested image key.
type CreatedPost struct {
	ID         int64             `json:"id"`
	UploadURLs map[string]string `json:"upload_urls"`
}

type Page struct {
	Posts []Post `json:"posts"`
	Pages int    `json:"pages"`
	Page  int    `json:"page"`
}
