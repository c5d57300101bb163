package folders

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/suPer8Hu/kel/internal/common"
	"gorm.io/gorm"
)

type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

// List returns favourites first, then the most recently accessed.
func (r *Repo) List(ctx context.Context) ([]Folder, error) {
	var out []Folder
	err := r.db.WithContext(ctx).
		Order("is_favorite DESC").
		Order("last_accessed_at IS NULL").
		Order("last_accessed_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

func (r *Repo) Get(ctx context.Context, id uint64) (*Folder, error) {
	var f Folder
	if err := r.db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, translate(err, id)
	}
	return &f, nil
}

// Create stores a folder. The name defaults to the last path element.
func (r *Repo) Create(ctx context.Context, in CreateInput) (*Folder, error) {
	path := strings.TrimSpace(in.Path)
	if path == "" {
		return nil, common.Invalid("path must not be empty")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = filepath.Base(filepath.Clean(path))
	}

	f := &Folder{Path: path, Name: name, IsFavorite: in.IsFavorite}
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: folder %s already exists", common.ErrConflict, path)
		}
		return nil, err
	}
	return f, nil
}

func (r *Repo) Update(ctx context.Context, id uint64, in UpdateInput) (*Folder, error) {
	changes := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, common.Invalid("name must not be empty")
		}
		changes["name"] = name
	}
	if in.IsFavorite != nil {
		changes["is_favorite"] = *in.IsFavorite
	}

	f, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return f, nil
	}
	if err := r.db.WithContext(ctx).Model(f).Updates(changes).Error; err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Touch records that the folder was opened.
func (r *Repo) Touch(ctx context.Context, id uint64) (*Folder, error) {
	res := r.db.WithContext(ctx).Model(&Folder{}).Where("id = ?", id).Update("last_accessed_at", r.now())
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, common.NotFound("folder %d", id)
	}
	return r.Get(ctx, id)
}

func (r *Repo) Delete(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Delete(&Folder{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NotFound("folder %d", id)
	}
	return nil
}

func translate(err error, id uint64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.NotFound("folder %d", id)
	}
	return err
}
