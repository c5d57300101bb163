package settings

import "time"

const (
	APIKeyOpenrouter = "Openrouter"
	APIKeyAnthropic  = "Anthropic"

	DefaultPreferredName = "friend"
)

// SupportedModels are the model ids the UI may select, first is the default.
var SupportedModels = []string{
	"anthropic/claude-sonnet-4.5",
	"anthropic/claude-haiku-4.5",
}

// Settings is the single persisted preferences row (ID is always 1).
type Settings struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement:false" json:"-"`
	PreferredName  string    `gorm:"type:varchar(100);not null" json:"preferred_name"`
	APIKey         *string   `gorm:"type:varchar(500)" json:"-"`
	APIKeyType     *string   `gorm:"type:varchar(16)" json:"api_key_type"`
	SelectedModel  string    `gorm:"type:varchar(64);not null" json:"selected_model"`
	DesktopContext bool      `gorm:"not null;default:false" json:"desktop_context"`
	HasAPIKey      bool      `gorm:"-" json:"has_api_key"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Settings) TableName() string { return "settings" }

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	PreferredName  *string `json:"preferred_name"`
	APIKey         *string `json:"api_key"`
	APIKeyType     *string `json:"api_key_type"`
	SelectedModel  *string `json:"selected_model"`
	DesktopContext *bool   `json:"desktop_context"`
}
