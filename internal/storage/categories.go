package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
)

// CreateCategoryType creates a top-level category type.
func (s *queries) CreateCategoryType(ctx context.Context, name string) (*model.CategoryType, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	name = strings.TrimSpace(name)
	result, err := s.q.ExecContext(ctx,
		"INSERT INTO category_types (name, created_at) VALUES (?, ?)", name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create category type: %w", mapError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category type ID: %w", err)
	}
	return &model.CategoryType{ID: id, Name: name, CreatedAt: now}, nil
}

// CreateCategory creates a category under a type.
func (s *queries) CreateCategory(ctx context.Context, typeID int64, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(typeID, "typeID"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	name = strings.TrimSpace(name)
	result, err := s.q.ExecContext(ctx,
		"INSERT INTO categories (type_id, name, created_at) VALUES (?, ?, ?)", typeID, name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", mapError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}
	return &model.Category{ID: id, TypeID: typeID, Name: name, CreatedAt: now}, nil
}

// CreateSubCategory creates a sub-category, the level rules point at.
func (s *queries) CreateSubCategory(ctx context.Context, categoryID int64, name string) (*model.SubCategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(categoryID, "categoryID"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	name = strings.TrimSpace(name)
	result, err := s.q.ExecContext(ctx,
		"INSERT INTO sub_categories (category_id, name, created_at) VALUES (?, ?, ?)", categoryID, name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create sub-category: %w", mapError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get sub-category ID: %w", err)
	}
	return &model.SubCategory{ID: id, CategoryID: categoryID, Name: name, CreatedAt: now}, nil
}

// DeleteSubCategory soft-deletes a sub-category. Rules pointing at it stop matching.
func (s *queries) DeleteSubCategory(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx,
		"UPDATE sub_categories SET is_deleted = 1 WHERE id = ? AND is_deleted = 0", id)
	if err != nil {
		return fmt.Errorf("failed to delete sub-category: %w", mapError(err))
	}
	if err := expectRow(result, "sub-category", id); err != nil {
		return err
	}

	slog.Info("deleted sub-category", "id", id)
	return nil
}

const categoryPathQuery = `
	SELECT ct.id, ct.name, c.id, c.name, sc.id, sc.name
	FROM sub_categories sc
	JOIN categories c ON sc.category_id = c.id
	JOIN category_types ct ON c.type_id = ct.id`

func scanCategoryPath(row rowScanner) (*model.CategoryPath, error) {
	var path model.CategoryPath
	if err := row.Scan(
		&path.TypeID, &path.TypeName,
		&path.CategoryID, &path.CategoryName,
		&path.SubCategoryID, &path.SubCategoryName,
	); err != nil {
		return nil, err
	}
	return &path, nil
}

// ResolveSubCategory walks a sub-category up to its category and type.
// Deleted sub-categories are not resolvable.
func (s *queries) ResolveSubCategory(ctx context.Context, id int64) (*model.CategoryPath, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	path, err := scanCategoryPath(s.q.QueryRowContext(ctx,
		categoryPathQuery+" WHERE sc.id = ? AND sc.is_deleted = 0", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sub-category %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sub-category: %w", mapError(err))
	}
	return path, nil
}

// ListSubCategories returns the full path of every live sub-category.
func (s *queries) ListSubCategories(ctx context.Context) ([]model.CategoryPath, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		categoryPathQuery+" WHERE sc.is_deleted = 0 ORDER BY ct.name, c.name, sc.name")
	if err != nil {
		return nil, fmt.Errorf("failed to query sub-categories: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var paths []model.CategoryPath
	for rows.Next() {
		path, err := scanCategoryPath(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sub-category: %w", err)
		}
		paths = append(paths, *path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sub-categories: %w", err)
	}

	slog.Debug("retrieved sub-categories", "count", len(paths))
	return paths, nil
}
