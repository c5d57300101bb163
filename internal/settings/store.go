package settings

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/kel/internal/ai"
	"github.com/suPer8Hu/kel/internal/common"
	"gorm.io/gorm"
)

const rowID = 1

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Initialize creates the settings row with defaults when it does not exist yet.
func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.load(ctx, s.db.WithContext(ctx))
	return err
}

func (s *Store) load(ctx context.Context, tx *gorm.DB) (*Settings, error) {
	var out Settings
	err := tx.Where(Settings{ID: rowID}).
		Attrs(Settings{PreferredName: DefaultPreferredName, SelectedModel: SupportedModels[0]}).
		FirstOrCreate(&out).Error
	if err != nil {
		return nil, err
	}
	out.HasAPIKey = out.APIKey != nil && *out.APIKey != ""
	return &out, nil
}

func (s *Store) Get(ctx context.Context) (*Settings, error) {
	return s.load(ctx, s.db.WithContext(ctx))
}

// Update validates every provided field and applies them in one write. An
// empty api_key or api_key_type clears the stored value.
func (s *Store) Update(ctx context.Context, p Patch) (*Settings, error) {
	changes, err := p.changes()
	if err != nil {
		return nil, err
	}

	var out *Settings
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.load(ctx, tx)
		if err != nil {
			return err
		}
		if len(changes) > 0 {
			if err := tx.Model(cur).Updates(changes).Error; err != nil {
				return err
			}
		}
		out, err = s.load(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p Patch) changes() (map[string]any, error) {
	changes := map[string]any{}

	if p.PreferredName != nil {
		name := strings.TrimSpace(*p.PreferredName)
		if n := utf8.RuneCountInString(name); n < 1 || n > 100 {
			return nil, common.Invalid("preferred_name must be 1..100 characters")
		}
		changes["preferred_name"] = name
	}
	if p.APIKey != nil {
		key := strings.TrimSpace(*p.APIKey)
		switch {
		case key == "":
			changes["api_key"] = nil
		case len(key) > 500:
			return nil, common.Invalid("api_key must be at most 500 characters")
		default:
			changes["api_key"] = key
		}
	}
	if p.APIKeyType != nil {
		switch kind := strings.TrimSpace(*p.APIKeyType); kind {
		case "":
			changes["api_key_type"] = nil
		case APIKeyOpenrouter, APIKeyAnthropic:
			changes["api_key_type"] = kind
		default:
			return nil, common.Invalid("api_key_type must be %s or %s", APIKeyOpenrouter, APIKeyAnthropic)
		}
	}
	if p.SelectedModel != nil {
		if !slices.Contains(SupportedModels, *p.SelectedModel) {
			return nil, common.Invalid("unsupported model %q", *p.SelectedModel)
		}
		changes["selected_model"] = *p.SelectedModel
	}
	if p.DesktopContext != nil {
		changes["desktop_context"] = *p.DesktopContext
	}
	return changes, nil
}

// Credentials feeds the model gateway; it is read on every generation.
func (s *Store) Credentials(ctx context.Context) (ai.Credentials, error) {
	cur, err := s.Get(ctx)
	if err != nil {
		return ai.Credentials{}, err
	}
	var creds ai.Credentials
	if cur.APIKey != nil {
		creds.APIKey = *cur.APIKey
	}
	if cur.APIKeyType != nil {
		creds.Kind = strings.ToLower(*cur.APIKeyType)
	}
	creds.Model = cur.SelectedModel
	return creds, nil
}

// DesktopContext reports whether screenshots are attached to turns by default.
func (s *Store) DesktopContext(ctx context.Context) (bool, error) {
	cur, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return cur.DesktopContext, nil
}
