package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

func (db *DB) CreateProfile(ctx context.Context, profile *model.Profile) error {
	if profile.ID == "" {
		profile.ID = xid.New().String()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (id, name, profile_pic, phoneno, bio, instagram, linkedin)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		profile.ID,
		profile.Name,
		profile.ProfilePic,
		profile.PhoneNo,
		profile.Bio,
		profile.Instagram,
		profile.LinkedIn,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("username", profile.Name)
		}
		return fmt.Errorf("sqlite: creating profile %s: %w", profile.Name, err)
	}
	return nil
}

// GetProfile returns the profile together with its saved blogs and followed
// topics, both in insertion order.
func (db *DB) GetProfile(ctx context.Context, name string) (*model.Profile, error) {
	var p model.Profile
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, profile_pic, phoneno, bio, instagram, linkedin
		 FROM profiles WHERE name = ?`,
		name,
	).Scan(&p.ID, &p.Name, &p.ProfilePic, &p.PhoneNo, &p.Bio, &p.Instagram, &p.LinkedIn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", name)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", name, err)
	}

	p.SavedBlogs, err = db.queryStrings(ctx,
		`SELECT blog_id FROM profile_saved_blogs WHERE profile_id = ? ORDER BY seq`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading saved blogs for %s: %w", name, err)
	}
	p.FollowedTopics, err = db.queryStrings(ctx,
		`SELECT category FROM profile_followed_topics WHERE profile_id = ? ORDER BY seq`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading followed topics for %s: %w", name, err)
	}
	return &p, nil
}

func (db *DB) UpdateProfile(ctx context.Context, oldName string, profile *model.Profile) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles
		 SET name = ?, profile_pic = ?, phoneno = ?, bio = ?, instagram = ?, linkedin = ?
		 WHERE name = ?`,
		profile.Name,
		profile.ProfilePic,
		profile.PhoneNo,
		profile.Bio,
		profile.Instagram,
		profile.LinkedIn,
		oldName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("username", profile.Name)
		}
		return fmt.Errorf("sqlite: updating profile %s: %w", oldName, err)
	}
	return requireOneRow(result, apperror.NotFound("profile", oldName))
}

func (db *DB) AddSavedBlog(ctx context.Context, name, blogID string) error {
	id, err := db.profileID(ctx, name)
	if err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO profile_saved_blogs (profile_id, blog_id) VALUES (?, ?)`,
		id, blogID,
	); err != nil {
		return fmt.Errorf("sqlite: saving blog %s for %s: %w", blogID, name, err)
	}
	return nil
}

func (db *DB) RemoveSavedBlog(ctx context.Context, name, blogID string) error {
	id, err := db.profileID(ctx, name)
	if err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM profile_saved_blogs WHERE profile_id = ? AND blog_id = ?`,
		id, blogID,
	); err != nil {
		return fmt.Errorf("sqlite: unsaving blog %s for %s: %w", blogID, name, err)
	}
	return nil
}

func (db *DB) AddFollowedTopic(ctx context.Context, name, category string) error {
	id, err := db.profileID(ctx, name)
	if err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO profile_followed_topics (profile_id, category) VALUES (?, ?)`,
		id, category,
	); err != nil {
		return fmt.Errorf("sqlite: following %s for %s: %w", category, name, err)
	}
	return nil
}

func (db *DB) RemoveFollowedTopic(ctx context.Context, name, category string) error {
	id, err := db.profileID(ctx, name)
	if err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM profile_followed_topics WHERE profile_id = ? AND category = ?`,
		id, category,
	); err != nil {
		return fmt.Errorf("sqlite: unfollowing %s for %s: %w", category, name, err)
	}
	return nil
}

func (db *DB) ListSavers(ctx context.Context, blogID string) ([]string, error) {
	names, err := db.queryStrings(ctx,
		`SELECT p.name FROM profile_saved_blogs s
		 JOIN profiles p ON p.id = s.profile_id
		 WHERE s.blog_id = ? ORDER BY p.name`,
		blogID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing savers of %s: %w", blogID, err)
	}
	return names, nil
}

func (db *DB) ForgetSavedBlog(ctx context.Context, blogID string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM profile_saved_blogs WHERE blog_id = ?`, blogID,
	); err != nil {
		return fmt.Errorf("sqlite: forgetting saved blog %s: %w", blogID, err)
	}
	return nil
}

func (db *DB) profileID(ctx context.Context, name string) (string, error) {
	var id string
	err := db.conn.QueryRowContext(ctx, `SELECT id FROM profiles WHERE name = ?`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("profile", name)
		}
		return "", fmt.Errorf("sqlite: resolving profile %s: %w", name, err)
	}
	return id, nil
}

// queryStrings runs a single-column query and returns every value. The result
// is never nil so it serializes as [] rather than null.
func (db *DB) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
