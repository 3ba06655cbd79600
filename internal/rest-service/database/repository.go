package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn against a repository bound to a single database
// transaction. Returning an error from fn rolls everything back.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// GetOrCreateUser returns the account for username, creating it on first sight.
func (r *Repository) GetOrCreateUser(ctx context.Context, username, email, firstName string) (*User, error) {
	u := &User{}
	err := r.conn(ctx).Where(&User{Username: username}).First(u).Error
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}
	u = &User{Username: username, Email: email, FirstName: firstName}
	if err = translateError(r.conn(ctx).Create(u).Error); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// created concurrently
			u = &User{}
			return u, r.conn(ctx).Where(&User{Username: username}).First(u).Error
		}
		return nil, err
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	return u, r.conn(ctx).Where("lower(email) = ?", strings.ToLower(email)).Order("created_at").First(u).Error
}

// DefaultCategory looks up the "General" category, creating it on first use.
func (r *Repository) DefaultCategory(ctx context.Context) (*Category, error) {
	return r.categoryByName(ctx, DefaultCategoryName)
}

func (r *Repository) categoryByName(ctx context.Context, name string) (*Category, error) {
	c := &Category{}
	err := r.conn(ctx).Where(&Category{Name: name}).First(c).Error
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}
	c = &Category{Name: name}
	if err = translateError(r.conn(ctx).Create(c).Error); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		c = &Category{}
		return c, r.conn(ctx).Where(&Category{Name: name}).First(c).Error
	}
	return c, nil
}

func (r *Repository) GetCategory(ctx context.Context, id uuid.UUID) (*Category, error) {
	c := &Category{}
	return c, r.conn(ctx).First(c, "id = ?", id).Error
}

func (r *Repository) ListCategories(ctx context.Context) ([]*Category, error) {
	var res []*Category
	return res, r.conn(ctx).Order("name").Find(&res).Error
}

// tagsByName resolves tag names, creating the missing ones.
func (r *Repository) tagsByName(ctx context.Context, names []string) ([]*Tag, error) {
	seen := make(map[string]struct{}, len(names))
	tags := make([]*Tag, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		t := &Tag{}
		err := r.conn(ctx).Where(&Tag{Name: n}).FirstOrCreate(t).Error
		if err = translateError(err); err != nil {
			if !errors.Is(err, ErrDuplicate) {
				return nil, err
			}
			if err = r.conn(ctx).Where(&Tag{Name: n}).First(t).Error; err != nil {
				return nil, err
			}
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// Now is the database clock (UTC).
func (r *Repository) Now() time.Time {
	return r.db.NowFunc()
}

// forUpdate adds FOR UPDATE where the dialect supports row locks. sqlite
// transactions already hold the database write lock.
func (r *Repository) forUpdate(ctx context.Context) *gorm.DB {
	db := r.conn(ctx)
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}
