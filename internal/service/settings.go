package service

import (
	"context"
	"fmt"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/repository"
)

type settingsPolicy struct {
	repo repository.SettingsRepository
}

// NewPolicySource reads thresholds from the settings table on every call,
// falling back to defaults for absent keys.
func NewPolicySource(repo repository.SettingsRepository) PolicySource {
	return &settingsPolicy{repo: repo}
}

func (p *settingsPolicy) Policy(ctx context.Context) (domain.Policy, error) {
	values, err := p.repo.GetAll(ctx)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("load settings: %w", err)
	}
	return domain.PolicyFromSettings(values), nil
}

// StaticPolicy is a PolicySource with fixed values.
type StaticPolicy domain.Policy

func (p StaticPolicy) Policy(ctx context.Context) (domain.Policy, error) {
	return domain.Policy(p), nil
}
