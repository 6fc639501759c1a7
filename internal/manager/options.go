package manager

import (
	"github.com/raphaelgruber/pagewise/internal/config"
	"github.com/raphaelgruber/pagewise/internal/metrics"
)

// OptionsFromConfig maps the application config onto manager options.
func OptionsFromConfig(cfg config.Config, mc *metrics.Collector) Options {
	opts := DefaultOptions()
	opts.Config = Config{
		EnableMemory:    cfg.EnableMemory,
		EnableCrossPage: cfg.EnableCrossPage,
		AutoResearch:    cfg.AutoResearch,
		PrivacyMode:     cfg.PrivacyMode,
	}
	if cfg.DefaultModel != "" {
		opts.DefaultModel = cfg.DefaultModel
	}
	if cfg.MaxPages > 0 {
		opts.Builder.MaxPages = cfg.MaxPages
	}
	if cfg.MaxConversations > 0 {
		opts.Builder.MaxConversations = cfg.MaxConversations
	}
	if cfg.MaxSessionMB > 0 {
		opts.Builder.MaxSessionBytes = cfg.MaxSessionMB << 20
	}
	if cfg.MaxContextAgeMinutes > 0 {
		opts.MaxContextAge = cfg.MaxContextAge()
		opts.Builder.ConversationMaxAge = cfg.MaxContextAge()
	}
	if cfg.SimilarityThreshold > 0 {
		opts.SimilarityThreshold = cfg.SimilarityThreshold
	}
	opts.Metrics = mc
	return opts
}
