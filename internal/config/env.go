package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Tokens are the per-deployment credentials selecting each backend. An empty
// token disables that backend for every session created with it.
type Tokens struct {
	GA4ID           string `env:"TRACKING_GA4_ID"`
	GA4APISecret    string `env:"TRACKING_GA4_API_SECRET"`
	MixpanelToken   string `env:"TRACKING_MIXPANEL_TOKEN"`
	MetaID          string `env:"TRACKING_META_ID"`
	MetaAccessToken string `env:"TRACKING_META_ACCESS_TOKEN"`
	BugsnagAPIKey   string `env:"TRACKING_BUGSNAG_API_KEY"`
	Environment     string `env:"TRACKING_ENVIRONMENT"`
}

// LoadTokens reads Tokens from the environment after loading any of the given
// .env files. Variables already set in the process environment win.
func LoadTokens(envFiles ...string) (Tokens, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Tokens{}, fmt.Errorf("load env files: %w", err)
		}
	}
	var t Tokens
	if err := env.Parse(&t); err != nil {
		return Tokens{}, fmt.Errorf("parse env: %w", err)
	}
	return t, nil
}
