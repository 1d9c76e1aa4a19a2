package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

var _ repository.CategoryRepository = (*DB)(nil)

func (db *DB) GetCategory(ctx context.Context, name string) (*model.Category, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE name = ?`, name,
	).Scan(&n); err != nil {
		return nil, fmt.Errorf("sqlite: getting category %s: %w", name, err)
	}
	if n == 0 {
		return nil, apperror.NotFound("category", name)
	}

	followers, err := db.queryStrings(ctx,
		`SELECT username FROM category_followers WHERE category = ? ORDER BY rowid`, name)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading followers of %s: %w", name, err)
	}
	return &model.Category{Name: name, FollowedBy: followers}, nil
}

func (db *DB) AddFollower(ctx context.Context, name, username string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO categories (name) VALUES (?)`, name)
	if err != nil {
		return false, fmt.Errorf("sqlite: creating category %s: %w", name, err)
	}
	created, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO category_followers (category, username) VALUES (?, ?)`,
		name, username,
	); err != nil {
		return false, fmt.Errorf("sqlite: following %s: %w", name, err)
	}
	return created > 0, nil
}

func (db *DB) RemoveFollower(ctx context.Context, name, username string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM category_followers WHERE category = ? AND username = ?`,
		name, username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unfollowing %s: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish "not following" (fine) from "no such category".
		if _, err := db.GetCategory(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) RenameFollower(ctx context.Context, oldName, newName string) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE OR IGNORE category_followers SET username = ? WHERE username = ?`,
		newName, oldName,
	); err != nil {
		return fmt.Errorf("sqlite: renaming follower %s: %w", oldName, err)
	}
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM category_followers WHERE username = ?`, oldName,
	); err != nil {
		return fmt.Errorf("sqlite: dropping duplicate follows of %s: %w", oldName, err)
	}
	return nil
}
