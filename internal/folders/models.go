package folders

import "time"

// Folder is a project directory the user pinned in the launcher.
type Folder struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Path           string     `gorm:"type:varchar(1024);uniqueIndex;not null" json:"path"`
	Name           string     `gorm:"type:varchar(255);not null" json:"name"`
	IsFavorite     bool       `gorm:"not null;default:false" json:"is_favorite"`
	LastAccessedAt *time.Time `json:"last_accessed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Folder) TableName() string { return "folders" }

type CreateInput struct {
	Path       string `json:"path" binding:"required"`
	Name       string `json:"name"`
	IsFavorite bool   `json:"is_favorite"`
}

type UpdateInput struct {
	Name       *string `json:"name"`
	IsFavorite *bool   `json:"is_favorite"`
}
