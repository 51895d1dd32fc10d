package posts

import (
	"context"
	"strings"
	"unicode/utf8"

	"backend-socialpost/internal/db"
	"backend-socialpost/internal/events"
	"backend-socialpost/internal/outbox"
	"backend-socialpost/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
)

const (
	PageSize          = 10
	maxDescriptionLen = 500
	maxKeyLen         = 200
)

// URLSigner presigns object-storage URLs for image keys.
type URLSigner interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

type Service struct {
	db           db.TxQuerier
	urls         URLSigner
	createdQueue string
}

func NewService(q db.TxQuerier, urls URLSigner, createdQueue string) *Service {
	return &Service{db: q, urls: urls, createdQueue: createdQueue}
}

// postSelect takes the viewer id as $1. An anonymous viewer is 0, which
// matches no like row.
const postSelect = `
	SELECT p.id, p.description, p.created_at, p.owner_id, COALESCE(u.username, ''),
		(SELECT count(*) FROM likes l WHERE l.post_id = p.id),
		EXISTS (SELECT 1 FROM likes l WHERE l.post_id = p.id AND l.user_id = $1)
	FROM posts p
	LEFT JOIN users u ON u.id = p.owner_id
`

// CreatePost writes the post, its image keys and the post-created event in
// one transaction, then hands back an upload URL per key.
func (s *Service) CreatePost(ctx context.Context, ownerID int64, req CreatePostRequest) (CreatedPost, error) {
	if err := validateCreate(req); err != nil {
		return CreatedPost{}, err
	}

	uploads := make(map[string]string, len(req.ImageKeys))
	for _, key := range req.ImageKeys {
		url, err := s.urls.PresignPut(ctx, key, req.ContentTypes[key])
		if err != nil {
			return CreatedPost{}, err
		}
		uploads[key] = url
	}

	created := CreatedPost{UploadURLs: uploads}
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO posts (description, owner_id)
			VALUES ($1,$2)
			RETURNING id
		`, req.Description, ownerID)
		if err := row.Scan(&created.ID); err != nil {
			return err
		}

		for _, key := range req.ImageKeys {
			_, err := tx.Exec(ctx, `
				INSERT INTO image_keys (key, post_id)
				VALUES ($1,$2)
			`, key, created.ID)
			if err != nil {
				return apperr.FromDB(err, "image key "+key)
			}
		}

		return outbox.Enqueue(ctx, tx, "", s.createdQueue, events.PostCreated(created.ID))
	})
	if err != nil {
		return CreatedPost{}, err
	}
	return created, nil
}

func validateCreate(req CreatePostRequest) error {
	if strings.TrimSpace(req.Description) == "" {
		return apperr.Validation("description is required")
	}
	if utf8.RuneCountInString(req.Description) > maxDescriptionLen {
		return apperr.Validation("description must be at most %d characters", maxDescriptionLen)
	}
	seen := make(map[string]struct{}, len(req.ImageKeys))
	for _, key := range req.ImageKeys {
		if key == "" {
			return apperr.Validation("image keys must not be empty")
		}
		if len(key) > maxKeyLen {
			return apperr.Validation("image key must be at most %d characters", maxKeyLen)
		}
		if _, dup := seen[key]; dup {
			return apperr.Validation("duplicate image key %q", key)
		}
		seen[key] = struct{}{}
	}
	for key := range req.ContentTypes {
		if _, ok := seen[key]; !ok {
			return apperr.Validation("content type given for unknown image key %q", key)
		}
	}
	return nil
}

// ListPosts returns one page of the global feed, newest first. The total and
// the page come from one snapshot so pages always agrees with the rows.
func (s *Service) ListPosts(ctx context.Context, viewerID int64, page int) (Page, error) {
	if page < 1 {
		return Page{}, apperr.Validation("page must be a positive integer")
	}

	result := Page{Posts: []Post{}, Page: page}
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SET TRANSACTION ISOLATION LEVEL REPEATABLE READ READ ONLY`); err != nil {
			return err
		}

		var total int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&total); err != nil {
			return err
		}
		result.Pages = (total + PageSize - 1) / PageSize

		rows, err := tx.Query(ctx, postSelect+`
			ORDER BY p.created_at DESC, p.id DESC
			LIMIT $2 OFFSET $3
		`, viewerID, PageSize, (page-1)*PageSize)
		if err != nil {
			return err
		}
		defer rows.Close()

		var ids []int64
		for rows.Next() {
			p, err := scanPost(rows, viewerID)
			if err != nil {
				return err
			}
			ids = append(ids, p.ID)
			result.Posts = append(result.Posts, p)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		return s.attachImages(ctx, tx, result.Posts, ids)
	})
	if err != nil {
		return Page{}, err
	}
	return result, nil
}

// GetPost loads a single post as seen by viewerID.
func (s *Service) GetPost(ctx context.Context, viewerID, postID int64) (Post, error) {
	row := s.db.QueryRow(ctx, postSelect+`WHERE p.id = $2`, viewerID, postID)
	p, err := scanPost(row, viewerID)
	if err != nil {
		return Post{}, apperr.FromDB(err, "post")
	}

	posts := []Post{p}
	if err := s.attachImages(ctx, s.db, posts, []int64{p.ID}); err != nil {
		return Post{}, err
	}
	return posts[0], nil
}

// DeletePost removes the caller's own post; image keys and likes cascade.
func (s *Service) DeletePost(ctx context.Context, callerID, postID int64) error {
	var ownerID int64
	err := s.db.QueryRow(ctx, `SELECT owner_id FROM posts WHERE id = $1`, postID).Scan(&ownerID)
	if err != nil {
		return apperr.FromDB(err, "post")
	}
	if ownerID != callerID {
		return apperr.Forbidden("post belongs to another user")
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM posts WHERE id = $1 AND owner_id = $2`, postID, callerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("post not found")
	}
	return nil
}

// Like is idempotent; liking an unknown post is NotFound.
func (s *Service) Like(ctx context.Context, userID, postID int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO likes (user_id, post_id)
		VALUES ($1,$2)
		ON CONFLICT DO NOTHING
	`, userID, postID)
	return apperr.FromDB(err, "post")
}

// Unlike succeeds whether or not the like existed.
func (s *Service) Unlike(ctx context.Context, userID, postID int64) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM likes WHERE user_id = $1 AND post_id = $2
	`, userID, postID)
	return err
}

func scanPost(row pgx.Row, viewerID int64) (Post, error) {
	var p Post
	if err := row.Scan(&p.ID, &p.Description, &p.CreatedAt, &p.User.ID, &p.User.Username, &p.LikesCount, &p.IsLiked); err != nil {
		return Post{}, err
	}
	p.IsOwner = viewerID != 0 && p.User.ID == viewerID
	p.ImageURLs = []string{}
	return p, nil
}

func (s *Service) attachImages(ctx context.Context, q db.Querier, posts []Post, ids []int64) error {
	keys, err := loadImageKeys(ctx, q, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		for _, key := range keys[posts[i].ID] {
			url, err := s.urls.PresignGet(ctx, key)
			if err != nil {
				return err
			}
			posts[i].ImageURLs = append(posts[i].ImageURLs, url)
		}
	}
	return nil
}

func loadImageKeys(ctx context.Context, q db.Querier, postIDs []int64) (map[int64][]string, error) {
	if len(postIDs) == 0 {
		return map[int64][]string{}, nil
	}
	rows, err := q.Query(ctx, `
		SELECT post_id, key
		FROM image_keys WHERE post_id = ANY($1)
		ORDER BY id
	`, postIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := map[int64][]string{}
	for rows.Next() {
		var postID int64
		var key string
		if err := rows.Scan(&postID, &key); err != nil {
			return nil, err
		}
		keys[postID] = append(keys[postID], key)
	}
	return keys, rows.Err()
}
