package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

var _ repository.BlogRepository = (*DB)(nil)

const blogColumns = `id, author, author_img, author_id, image, title, body, tags, category,
	views, last_viewed_at, is_private, created_at, updated_at`

func (db *DB) CreateBlog(ctx context.Context, blog *model.Blog) error {
	now := time.Now().UTC()
	blog.ID = xid.New().String()
	blog.CreatedAt = now
	blog.UpdatedAt = now
	blog.Views = 0
	blog.LastViewedAt = nil
	blog.Comments = []model.Comment{}
	blog.Likes = model.Likes{LikedBy: []string{}}
	if blog.Tags == nil {
		blog.Tags = []string{}
	}

	tags, err := json.Marshal(blog.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO blogs (id, author, author_img, author_id, image, title, body, tags, category,
			is_private, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		blog.ID,
		blog.Author,
		blog.AuthorImg,
		blog.AuthorID,
		blog.Image,
		blog.Title,
		blog.Body,
		string(tags),
		blog.Category,
		blog.IsPrivate,
		blog.CreatedAt,
		blog.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating blog: %w", err)
	}
	return nil
}

// GetBlog returns the blog with its comments, likes and visitor list.
func (db *DB) GetBlog(ctx context.Context, id string) (*model.Blog, error) {
	return getBlog(ctx, db.conn, id)
}

func getBlog(ctx context.Context, q querier, id string) (*model.Blog, error) {
	b, err := scanBlog(q.QueryRowContext(ctx, `SELECT `+blogColumns+` FROM blogs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("blog", id)
		}
		return nil, fmt.Errorf("sqlite: getting blog %s: %w", id, err)
	}

	blogs := []model.Blog{*b}
	if err := loadEngagement(ctx, q, blogs); err != nil {
		return nil, err
	}
	*b = blogs[0]

	rows, err := q.QueryContext(ctx,
		`SELECT visitor FROM blog_visitors WHERE blog_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading visitors of %s: %w", id, err)
	}
	defer rows.Close()
	b.Visitors = []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqlite: scanning visitor: %w", err)
		}
		b.Visitors = append(b.Visitors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating visitors: %w", err)
	}
	return b, nil
}

func (db *DB) ListBlogs(ctx context.Context, filter repository.BlogFilter) ([]model.Blog, error) {
	var (
		where []string
		args  []any
	)
	if filter.Author != "" {
		where = append(where, "author = ?")
		args = append(args, filter.Author)
	}
	if len(filter.Categories) > 0 {
		where = append(where, "category IN ("+placeholders(len(filter.Categories))+")")
		args = append(args, stringArgs(filter.Categories)...)
	}
	if len(filter.NotIn) > 0 {
		where = append(where, "category NOT IN ("+placeholders(len(filter.NotIn))+")")
		args = append(args, stringArgs(filter.NotIn)...)
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []model.Blog{}, nil
		}
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		args = append(args, stringArgs(filter.IDs)...)
	}
	if filter.PublicOnly {
		where = append(where, "is_private = 0")
	}

	query := `SELECT ` + blogColumns + ` FROM blogs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing blogs: %w", err)
	}

	blogs := []model.Blog{}
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning blog: %w", err)
		}
		blogs = append(blogs, *b)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlite: iterating blogs: %w", err)
	}

	if err := loadEngagement(ctx, db.conn, blogs); err != nil {
		return nil, err
	}
	return blogs, nil
}

func (db *DB) UpdateBlogContent(ctx context.Context, blog *model.Blog) error {
	if blog.Tags == nil {
		blog.Tags = []string{}
	}
	tags, err := json.Marshal(blog.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	blog.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE blogs
		 SET author = ?, author_img = ?, author_id = ?, image = ?, title = ?, body = ?,
		     tags = ?, category = ?, updated_at = ?
		 WHERE id = ?`,
		blog.Author,
		blog.AuthorImg,
		blog.AuthorID,
		blog.Image,
		blog.Title,
		blog.Body,
		string(tags),
		blog.Category,
		blog.UpdatedAt,
		blog.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating blog %s: %w", blog.ID, err)
	}
	return requireOneRow(result, apperror.NotFound("blog", blog.ID))
}

func (db *DB) SetPrivate(ctx context.Context, id string, private bool) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE blogs SET is_private = ?, updated_at = ? WHERE id = ?`,
		private, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting visibility of %s: %w", id, err)
	}
	return requireOneRow(result, apperror.NotFound("blog", id))
}

// DeleteBlog removes the blog. Comments, likes and visitors go with it via
// ON DELETE CASCADE.
func (db *DB) DeleteBlog(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM blogs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting blog %s: %w", id, err)
	}
	return requireOneRow(result, apperror.NotFound("blog", id))
}

func (db *DB) AddComment(ctx context.Context, blogID string, comment *model.Comment) error {
	if err := db.requireBlog(ctx, blogID); err != nil {
		return err
	}
	if comment.ID == "" {
		comment.ID = xid.New().String()
	}
	if comment.Date.IsZero() {
		comment.Date = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO blog_comments (id, blog_id, username, user_img, comment, date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		comment.ID, blogID, comment.Username, comment.UserImg, comment.Comment, comment.Date,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding comment to %s: %w", blogID, err)
	}
	return nil
}

func (db *DB) AddLike(ctx context.Context, blogID, username string) error {
	if err := db.requireBlog(ctx, blogID); err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO blog_likes (blog_id, username) VALUES (?, ?)`,
		blogID, username,
	); err != nil {
		return fmt.Errorf("sqlite: liking %s: %w", blogID, err)
	}
	return nil
}

func (db *DB) RemoveLike(ctx context.Context, blogID, username string) error {
	if err := db.requireBlog(ctx, blogID); err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM blog_likes WHERE blog_id = ? AND username = ?`,
		blogID, username,
	); err != nil {
		return fmt.Errorf("sqlite: unliking %s: %w", blogID, err)
	}
	return nil
}

// RecordView counts a visit when the visitor is new or the blog has not been
// viewed for at least the cooldown. The visitor list keeps the most recent
// view.MaxVisitors entries.
func (db *DB) RecordView(ctx context.Context, blogID string, view repository.View) (*model.Blog, bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: beginning view transaction: %w", err)
	}
	defer tx.Rollback()

	var lastViewed sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT last_viewed_at FROM blogs WHERE id = ?`, blogID).Scan(&lastViewed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, apperror.NotFound("blog", blogID)
		}
		return nil, false, fmt.Errorf("sqlite: reading last view of %s: %w", blogID, err)
	}

	var seen int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blog_visitors WHERE blog_id = ? AND visitor = ?`,
		blogID, view.Visitor,
	).Scan(&seen); err != nil {
		return nil, false, fmt.Errorf("sqlite: checking visitor: %w", err)
	}

	at := view.At.UTC()
	cooled := !lastViewed.Valid || at.Sub(lastViewed.Time) >= view.Cooldown
	counted := seen == 0 || cooled

	if counted {
		if _, err := tx.ExecContext(ctx,
			`UPDATE blogs SET views = views + 1, last_viewed_at = ? WHERE id = ?`,
			at, blogID,
		); err != nil {
			return nil, false, fmt.Errorf("sqlite: incrementing views of %s: %w", blogID, err)
		}
		if seen == 0 {
			if err := addVisitor(ctx, tx, blogID, view.Visitor, view.MaxVisitors); err != nil {
				return nil, false, err
			}
		}
	}

	blog, err := getBlog(ctx, tx, blogID)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("sqlite: committing view: %w", err)
	}
	return blog, counted, nil
}

func addVisitor(ctx context.Context, tx *sql.Tx, blogID, visitor string, max int) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blog_visitors (blog_id, visitor) VALUES (?, ?)`, blogID, visitor,
	); err != nil {
		return fmt.Errorf("sqlite: recording visitor: %w", err)
	}
	if max <= 0 {
		return nil
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blog_visitors WHERE blog_id = ?`, blogID,
	).Scan(&count); err != nil {
		return fmt.Errorf("sqlite: counting visitors: %w", err)
	}
	if count <= max {
		return nil
	}

	// Oldest visitors go first.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM blog_visitors WHERE rowid IN (
			SELECT rowid FROM blog_visitors WHERE blog_id = ? ORDER BY rowid LIMIT ?
		)`,
		blogID, count-max,
	); err != nil {
		return fmt.Errorf("sqlite: trimming visitors: %w", err)
	}
	return nil
}

func (db *DB) RenameAuthor(ctx context.Context, oldName, newName, avatar string) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE blogs SET author = ?, author_img = ? WHERE author = ?`,
		newName, avatar, oldName,
	); err != nil {
		return fmt.Errorf("sqlite: renaming author %s: %w", oldName, err)
	}
	return nil
}

func (db *DB) RenameCommenter(ctx context.Context, oldName, newName, avatar string) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE blog_comments SET username = ?, user_img = ? WHERE username = ?`,
		newName, avatar, oldName,
	); err != nil {
		return fmt.Errorf("sqlite: renaming commenter %s: %w", oldName, err)
	}
	return nil
}

// RenameLiker rewrites likes by oldName. A blog liked by both names keeps a
// single like.
func (db *DB) RenameLiker(ctx context.Context, oldName, newName string) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE OR IGNORE blog_likes SET username = ? WHERE username = ?`,
		newName, oldName,
	); err != nil {
		return fmt.Errorf("sqlite: renaming liker %s: %w", oldName, err)
	}
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM blog_likes WHERE username = ?`, oldName,
	); err != nil {
		return fmt.Errorf("sqlite: dropping duplicate likes of %s: %w", oldName, err)
	}
	return nil
}

func (db *DB) requireBlog(ctx context.Context, id string) error {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blogs WHERE id = ?`, id,
	).Scan(&n); err != nil {
		return fmt.Errorf("sqlite: checking blog %s: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("blog", id)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlog(row rowScanner) (*model.Blog, error) {
	var (
		b          model.Blog
		tags       string
		lastViewed sql.NullTime
	)
	if err := row.Scan(
		&b.ID,
		&b.Author,
		&b.AuthorImg,
		&b.AuthorID,
		&b.Image,
		&b.Title,
		&b.Body,
		&tags,
		&b.Category,
		&b.Views,
		&lastViewed,
		&b.IsPrivate,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of %s: %w", b.ID, err)
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	if lastViewed.Valid {
		t := lastViewed.Time
		b.LastViewedAt = &t
	}
	b.Comments = []model.Comment{}
	b.Likes = model.Likes{LikedBy: []string{}}
	return &b, nil
}

// loadEngagement fills Comments and Likes for every blog with one query per
// child table.
func loadEngagement(ctx context.Context, q querier, blogs []model.Blog) error {
	if len(blogs) == 0 {
		return nil
	}
	index := make(map[string]int, len(blogs))
	ids := make([]string, len(blogs))
	for i := range blogs {
		index[blogs[i].ID] = i
		ids[i] = blogs[i].ID
	}
	in := "(" + placeholders(len(ids)) + ")"

	rows, err := q.QueryContext(ctx,
		`SELECT blog_id, id, username, user_img, comment, date
		 FROM blog_comments WHERE blog_id IN `+in+` ORDER BY date, rowid`,
		stringArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading comments: %w", err)
	}
	for rows.Next() {
		var (
			blogID string
			c      model.Comment
		)
		if err := rows.Scan(&blogID, &c.ID, &c.Username, &c.UserImg, &c.Comment, &c.Date); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scanning comment: %w", err)
		}
		i := index[blogID]
		blogs[i].Comments = append(blogs[i].Comments, c)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("sqlite: iterating comments: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		`SELECT blog_id, username FROM blog_likes WHERE blog_id IN `+in+` ORDER BY rowid`,
		stringArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading likes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var blogID, username string
		if err := rows.Scan(&blogID, &username); err != nil {
			return fmt.Errorf("sqlite: scanning like: %w", err)
		}
		i := index[blogID]
		blogs[i].Likes.LikedBy = append(blogs[i].Likes.LikedBy, username)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating likes: %w", err)
	}
	return nil
}
