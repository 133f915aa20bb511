package gadget

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gadgets/internal/models"
)

// PageSize is the fixed number of gadgets per list page.
const PageSize = 5

// Sort defaults and allow-list. Unrecognized fields fall back to the default.
const (
	DefaultSortField     = "created_at"
	DefaultSortDirection = "desc"
)

// SortFields contains the columns the list can be ordered by
var SortFields = map[string]bool{
	"name":       true,
	"price":      true,
	"created_at": true,
	"updated_at": true,
}

// ValidateSortField returns field if allowed, otherwise the default.
func ValidateSortField(field string) string {
	trimmed := strings.TrimSpace(field)
	if SortFields[trimmed] {
		return trimmed
	}
	return DefaultSortField
}

// ValidateSortDirection normalizes to "asc" or "desc" (the default).
func ValidateSortDirection(dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		return "asc"
	}
	return DefaultSortDirection
}

// ListQuery selects one page of gadgets.
type ListQuery struct {
	Search        string
	SortField     string
	SortDirection string
	Page          int
}

// Normalize applies defaults and the sort allow-list.
func (q ListQuery) Normalize() ListQuery {
	q.SortField = ValidateSortField(q.SortField)
	q.SortDirection = ValidateSortDirection(q.SortDirection)
	if q.Page < 1 {
		q.Page = 1
	}
	return q
}

// Repository is the GORM persistence of gadgets.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn with a repository bound to a database transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *Repository) searchScope(ctx context.Context, search string) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Gadget{})
	if search != "" {
		pattern := "%" + likeEscaper.Replace(search) + "%"
		q = q.Where(`name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'`, pattern, pattern)
	}
	return q
}

// List returns one page of gadgets with their creators and the total match count.
// q must be normalized.
func (r *Repository) List(ctx context.Context, q ListQuery) ([]models.Gadget, int64, error) {
	var total int64
	if err := r.searchScope(ctx, q.Search).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Gadget
	err := r.searchScope(ctx, q.Search).
		Preload("CreatedBy").
		Order(clause.OrderByColumn{Column: clause.Column{Name: q.SortField}, Desc: q.SortDirection == "desc"}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: q.SortDirection == "desc"}).
		Offset((q.Page - 1) * PageSize).
		Limit(PageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// FindByID loads a gadget with its creator.
func (r *Repository) FindByID(ctx context.Context, id uint) (*models.Gadget, error) {
	var g models.Gadget
	if err := r.db.WithContext(ctx).Preload("CreatedBy").First(&g, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, err
	}
	return &g, nil
}

// LockByID loads a gadget row for update. Call it inside Transaction.
func (r *Repository) LockByID(ctx context.Context, id uint) (*models.Gadget, error) {
	var g models.Gadget
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&g, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, err
	}
	return &g, nil
}

// UserExists reports whether a user row with id exists.
func (r *Repository) UserExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts g.
func (r *Repository) Create(ctx context.Context, g *models.Gadget) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(g).Error
}

// Update writes every column of g to its existing row. It never inserts;
// NotFoundError when the row is gone.
func (r *Repository) Update(ctx context.Context, g *models.Gadget) error {
	res := r.db.WithContext(ctx).Model(g).Select("*").Omit(clause.Associations).Updates(g)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{ID: g.ID}
	}
	return nil
}

// Delete removes the row; NotFoundError when nothing was deleted.
func (r *Repository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Gadget{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}
