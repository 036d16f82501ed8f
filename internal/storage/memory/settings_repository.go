package memory

import (
	"context"

	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
)

// SettingsRepository implements settingsDomain.Repository.
type SettingsRepository struct{ s *Store }

func (r *SettingsRepository) Get(ctx context.Context) (*settingsDomain.Settings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.settings == nil {
		return nil, nil
	}
	cp := *r.s.settings
	return &cp, nil
}

func (r *SettingsRepository) Save(ctx context.Context, settings *settingsDomain.Settings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *settings
	r.s.settings = &cp
	return nil
}
