package posts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"backend-socialpost/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
)

type fakeSigner struct {
	err error
}

func (f fakeSigner) PresignPut(_ context.Context, key, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if contentType != "" {
		return "https://put.example/" + key + "?content-type=" + contentType, nil
	}
	return "https://put.example/" + key, nil
}

func (f fakeSigner) PresignGet(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://get.example/" + key, nil
}

var postColumns = []string{"id", "description", "created_at", "owner_id", "username", "likes_count", "is_liked"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestCreatePost(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, fakeSigner{}, "created-posts")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO posts`).
		WithArgs("hello", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(`INSERT INTO image_keys`).
		WithArgs("k1", int64(11)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO image_keys`).
		WithArgs("k2", int64(11)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs("", "created-posts", []byte("11")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, err := svc.CreatePost(context.Background(), 7, CreatePostRequest{
		Description: "hello",
		ImageKeys:   []string{"k1", "k2"},
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if created.ID != 11 || created.UploadURLs["k1"] != "https://put.example/k1" || len(created.UploadURLs) != 2 {
		t.Fatalf("unexpected result: %+v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePostValidation(t *testing.T) {
	svc := NewService(newMock(t), fakeSigner{}, "q")
	cases := []CreatePostRequest{
		{Description: ""},
		{Description: "   "},
		{Description: strings.Repeat("é", maxDescriptionLen+1)},
		{Description: "ok", ImageKeys: []string{""}},
		{Description: "ok", ImageKeys: []string{strings.Repeat("k", maxKeyLen+1)}},
		{Description: "ok", ImageKeys: []string{"a", "a"}},
		{Description: "ok", ImageKeys: []string{"a"}, ContentTypes: map[string]string{"b": "image/png"}},
	}
	for i, req := range cases {
		_, err := svc.CreatePost(context.Background(), 1, req)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}

	// 500 multi-byte runes is still within the limit.
	if err := validateCreate(CreatePostRequest{Description: strings.Repeat("é", maxDescriptionLen)}); err != nil {
		t.Fatalf("expected valid description: %v", err)
	}
}

func TestCreatePostPinsContentTypes(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, fakeSigner{}, "created-posts")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO posts`).
		WithArgs("hello", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectExec(`INSERT INTO image_keys`).
		WithArgs("a.png", int64(12)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO image_keys`).
		WithArgs("b.bin", int64(12)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs("", "created-posts", []byte("12")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, err := svc.CreatePost(context.Background(), 7, CreatePostRequest{
		Description:  "hello",
		ImageKeys:    []string{"a.png", "b.bin"},
		ContentTypes: map[string]string{"a.png": "image/png"},
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if got := created.UploadURLs["a.png"]; got != "https://put.example/a.png?content-type=image/png" {
		t.Fatalf("content type not passed to signer: %s", got)
	}
	if got := created.UploadURLs["b.bin"]; got != "https://put.example/b.bin" {
		t.Fatalf("unexpected url for unpinned key: %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePostDuplicateKeyRollsBack(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, fakeSigner{}, "q")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO posts`).
		WithArgs("hello", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(`INSERT INTO image_keys`).
		WithArgs("taken", int64(11)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.CreatePost(context.Background(), 7, CreatePostRequest{Description: "hello", ImageKeys: []string{"taken"}})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePostSignerError(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, fakeSigner{err: errors.New("storage down")}, "q")

	if _, err := svc.CreatePost(context.Background(), 7, CreatePostRequest{Description: "x", ImageKeys: []string{"k"}}); err == nil {
		t.Fatalf("expected signer error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no sql expected: %v", err)
	}
}

func expectSnapshot(mock pgxmock.PgxPoolIface) {
	mock.ExpectBegin()
	mock.ExpectExec(`SET TRANSACTION ISOLATION LEVEL REPEATABLE READ READ ONLY`).
		WillReturnResult(pgxmock.NewResult("SET", 0))
}

func TestListPosts(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, fakeSigner{}, "q")
	now := time.Now()

	expectSnapshot(mock)
	mock.ExpectQuery(`SELECT count\(\*\) FROM posts`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(`FROM posts p\s+LEFT JOIN users u.*ORDER BY p.created_at DESC, p.id DESC`).
		WithArgs(int64(7), PageSize, 0).
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow(int64(2), "second", now, int64(7), "alice", int64(3), true).
			AddRow(int64(1), "first", now.Add(-time.Hour), int64(8), "", int64(0), false))
	mock.ExpectQuery(`SELECT post_id, key`).
		WithArgs([]int64{2, 1}).
		WillReturnRows(pgxmock.NewRows([]string{"post_id", "key"}).
			AddRow(int64(2), "a.png").
			AddRow(int64(2), "b.png"))
	mock.ExpectCommit()

	page, err := svc.ListPosts(context.Background(), 7, 1)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if page.Pages != 2 || page.Page != 1 || len(page.Posts) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	first := page.Posts[0]
	if !first.IsOwner || !first.IsLiked || first.LikesCount != 3 || first.User.Username != "alice" {
		t.Fatalf("unexpected first post: %+v", first)
	}
	if len(first.ImageURLs) != 2 || first.ImageURLs[0] != "https://get.example/a.png" {
		t.Fatalf("unexpected image urls: %v", first.ImageURLs)
	}
	second := page.Posts[1]
	if second.IsOwner || second.ImageURLs == nil || len(second.ImageURLs) != 0 {
		t.Fatalf("unexpected second post: %+v", second)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListPostsAnonymousEmptyPage(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, fakeSigner{}, "q")

	expectSnapshot(mock)
	mock.ExpectQuery(`SELECT count\(\*\) FROM posts`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM posts p`).
		WithArgs(int64(0), PageSize, 20).
		WillReturnRows(pgxmock.NewRows(postColumns))
	mock.ExpectCommit()

	page, err := svc.ListPosts(context.Background(), 0, 3)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if page.Pages != 0 || page.Posts == nil || len(page.Posts) != 0 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListPostsAnonymousNeverOwner(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, fakeSigner{}, "q")

	expectSnapshot(mock)
	mock.ExpectQuery(`SELECT count\(\*\) FROM posts`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM posts p`).
		WithArgs(int64(0), PageSize, 0).
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow(int64(1), "x", time.Now(), int64(0), "", int64(0), false))
	mock.ExpectQuery(`SELECT post_id, key`).
		WithArgs([]int64{1}).
		WillReturnRows(pgxmock.NewRows([]string{"post_id", "key"}))
	mock.ExpectCommit()

	page, err := svc.ListPosts(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if page.Posts[0].IsOwner || page.Posts[0].IsLiked {
		t.Fatalf("anonymous viewer must not own or like: %+v", page.Posts[0])
	}
}

func TestListPostsErrors(t *testing.T) {
	svc := NewService(newMock(t), fakeSigner{}, "q")
	if _, err := svc.ListPosts(context.Background(), 0, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	errCount := errors.New("count failed")
	errQuery := errors.New("query failed")
	errKeys := errors.New("keys failed")

	tests := []struct {
		name   string
		expect func(mock pgxmock.PgxPoolIface)
		want   error
	}{
		{
			name: "count",
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT count\(\*\) FROM posts`).WillReturnError(errCount)
			},
			want: errCount,
		},
		{
			name: "page",
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT count\(\*\) FROM posts`).
					WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
				mock.ExpectQuery(`FROM posts p`).
					WithArgs(int64(0), PageSize, 0).
					WillReturnError(errQuery)
			},
			want: errQuery,
		},
		{
			name: "image keys",
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT count\(\*\) FROM posts`).
					WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
				mock.ExpectQuery(`FROM posts p`).
					WithArgs(int64(0), PageSize, 0).
					WillReturnRows(pgxmock.NewRows(postColumns).
						AddRow(int64(1), "x", time.Now(), int64(2), "bob", int64(0), false))
				mock.ExpectQuery(`SELECT post_id, key`).
					WithArgs([]int64{1}).
					WillReturnError(errKeys)
			},
			want: errKeys,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			svc := NewService(mock, fakeSigner{}, "q")
			expectSnapshot(mock)
			tt.expect(mock)
			mock.ExpectRollback()

			if _, err := svc.ListPosts(context.Background(), 0, 1); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestGetPost(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, fakeSigner{}, "q")

	mock.ExpectQuery(`WHERE p.id = \$2`).
		WithArgs(int64(0), int64(5)).
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow(int64(5), "hi", time.Now(), int64(2), "bob", int64(1), false))
	mock.ExpectQuery(`SELECT post_id, key`).
		WithArgs([]int64{5}).
		WillReturnRows(pgxmock.NewRows([]string{"post_id", "key"}).AddRow(int64(5), "c.png"))

	post, err := svc.GetPost(context.Background(), 0, 5)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.ID != 5 || post.User.ID != 2 || len(post.ImageURLs) != 1 {
		t.Fatalf("unexpected post: %+v", post)
	}

	mock.ExpectQuery(`WHERE p.id = \$2`).
		WithArgs(int64(0), int64(6)).
		WillReturnError(pgx.ErrNoRows)
	if _, err := svc.GetPost(context.Background(), 0, 6); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeletePost(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, fakeSigner{}, "q")

	mock.ExpectQuery(`SELECT owner_id FROM posts`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"owner_id"}).AddRow(int64(7)))
	mock.ExpectExec(`DELETE FROM posts`).
		WithArgs(int64(5), int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := svc.DeletePost(context.Background(), 7, 5); err != nil {
		t.Fatalf("delete: %v", err)
	}

	mock.ExpectQuery(`SELECT owner_id FROM posts`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"owner_id"}).AddRow(int64(7)))
	if err := svc.DeletePost(context.Background(), 8, 5); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	mock.ExpectQuery(`SELECT owner_id FROM posts`).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)
	if err := svc.DeletePost(context.Background(), 7, 9); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	mock.ExpectQuery(`SELECT owner_id FROM posts`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"owner_id"}).AddRow(int64(7)))
	mock.ExpectExec(`DELETE FROM posts`).
		WithArgs(int64(5), int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if err := svc.DeletePost(context.Background(), 7, 5); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for concurrent delete, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLikeAndUnlike(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, fakeSigner{}, "q")

	for i := 0; i < 2; i++ {
		mock.ExpectExec(`INSERT INTO likes .* ON CONFLICT DO NOTHING`).
			WithArgs(int64(7), int64(5)).
			WillReturnResult(pgxmock.NewResult("INSERT", int64(1-i)))
		if err := svc.Like(context.Background(), 7, 5); err != nil {
			t.Fatalf("like %d: %v", i, err)
		}
	}

	mock.ExpectExec(`INSERT INTO likes`).
		WithArgs(int64(7), int64(99)).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	if err := svc.Like(context.Background(), 7, 99); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	mock.ExpectExec(`DELETE FROM likes`).
		WithArgs(int64(7), int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if err := svc.Unlike(context.Background(), 7, 5); err != nil {
		t.Fatalf("unlike missing row: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
