// Package manager composes page analysis, conversation memory, cross-page
// context and session building into one façade that hosts drive.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/pagewise/internal/analyzer"
	"github.com/raphaelgruber/pagewise/internal/builder"
	"github.com/raphaelgruber/pagewise/internal/crosspage"
	"github.com/raphaelgruber/pagewise/internal/memory"
	"github.com/raphaelgruber/pagewise/internal/metrics"
	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/optimizer"
)

// Errors returned by the manager.
var (
	// ErrIncompatibleVersion is returned when importing an export whose
	// version is not ExportVersion.
	ErrIncompatibleVersion = errors.New("incompatible export version")
	// ErrNoActiveResearch is returned by research operations that need an
	// active session.
	ErrNoActiveResearch = crosspage.ErrNoActiveResearch
	// ErrResearchActive is returned when starting a session while one is
	// active.
	ErrResearchActive = crosspage.ErrResearchActive
	// ErrCrossPageDisabled is returned by research operations while
	// cross-page context is off.
	ErrCrossPageDisabled = errors.New("cross-page context disabled")
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// IDGenerator returns short unpredictable identifiers.
type IDGenerator func() string

// NewIDGenerator returns a generator of 8-character uuid prefixes.
func NewIDGenerator() IDGenerator {
	return func() string { return uuid.NewString()[:8] }
}

// Config holds the feature toggles. It is part of the export document.
type Config struct {
	EnableMemory    bool `json:"enableMemory"`
	EnableCrossPage bool `json:"enableCrossPage"`
	AutoResearch    bool `json:"autoResearchMode"`
	PrivacyMode     bool `json:"privacyMode"`
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Config              Config
	DefaultModel        string
	Builder             builder.Options
	SimilarityThreshold float64
	MaxContextAge       time.Duration

	Clock     Clock
	NewID     IDGenerator
	Extractor memory.Extractor
	Metrics   *metrics.Collector
}

// DefaultOptions enables memory, cross-page context and auto research with
// privacy mode off.
func DefaultOptions() Options {
	return Options{
		Config: Config{
			EnableMemory:    true,
			EnableCrossPage: true,
			AutoResearch:    true,
		},
		DefaultModel:        optimizer.ModelChat,
		Builder:             builder.DefaultOptions(),
		SimilarityThreshold: crosspage.DefaultSimilarityThreshold,
		MaxContextAge:       crosspage.DefaultMaxContextAge,
	}
}

// Manager owns the session components. All methods are safe for
// concurrent use; calls are serialized.
type Manager struct {
	mu      sync.Mutex
	logger  *slog.Logger
	clock   Clock
	newID   IDGenerator
	metrics *metrics.Collector
	opts    Options
	cfg     Config

	analyzer  *analyzer.Analyzer
	optimizer *optimizer.Optimizer
	builder   *builder.Builder
	memory    *memory.Memory
	crossPage *crosspage.CrossPage
}

// New creates a manager with empty session state.
func New(logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.NewID == nil {
		opts.NewID = NewIDGenerator()
	}
	if opts.Extractor == nil {
		opts.Extractor = memory.RegexExtractor{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = optimizer.ModelChat
	}

	now := opts.Clock.Now
	opt := optimizer.New(logger.With("component", "optimizer"))
	m := &Manager{
		logger:    logger,
		clock:     opts.Clock,
		newID:     opts.NewID,
		metrics:   opts.Metrics,
		opts:      opts,
		cfg:       opts.Config,
		analyzer:  analyzer.New(logger.With("component", "analyzer"), now),
		optimizer: opt,
		builder:   builder.New(logger.With("component", "builder"), now, opt, opts.Extractor, opts.Builder),
		memory:    memory.New(logger.With("component", "memory"), now, opts.Extractor),
		crossPage: crosspage.New(logger.With("component", "crosspage"), now, opts.NewID, crosspage.Options{
			SimilarityThreshold: opts.SimilarityThreshold,
			MaxContextAge:       opts.MaxContextAge,
			AutoResearch:        opts.Config.AutoResearch,
		}),
	}
	return m
}

// Config returns the current feature toggles.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// SetPrivacyMode toggles redaction of personal data in built contexts.
func (m *Manager) SetPrivacyMode(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.PrivacyMode = on
}

// SetMemoryEnabled toggles conversation memory.
func (m *Manager) SetMemoryEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.EnableMemory = on
}

// SetCrossPageEnabled toggles cross-page context.
func (m *Manager) SetCrossPageEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.EnableCrossPage = on
}

// SetAutoResearch toggles automatic research-session detection.
func (m *Manager) SetAutoResearch(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setAutoResearch(on)
}

func (m *Manager) setAutoResearch(on bool) {
	m.cfg.AutoResearch = on
	m.crossPage.SetAutoResearch(on)
}

// GetMetrics returns the session statistics.
func (m *Manager) GetMetrics() metrics.Snapshot {
	return m.metrics.Snapshot()
}

// Metrics returns the collector shared with host adapters.
func (m *Manager) Metrics() *metrics.Collector {
	return m.metrics
}

// ClearAllContext drops every page, conversation, memory item and research
// session and resets the session counters. Feature toggles are kept.
func (m *Manager) ClearAllContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
	m.logger.Info("context cleared")
	return nil
}

func (m *Manager) clear() {
	m.builder.Clear()
	m.memory.Clear()
	m.crossPage.Clear()
	m.metrics.Reset()
}

// Summary describes the session for hosts.
type Summary struct {
	PageCount         int                     `json:"pageCount"`
	ConversationCount int                     `json:"conversationCount"`
	CurrentPageID     string                  `json:"currentPageId,omitempty"`
	PrimaryTopic      string                  `json:"primaryTopic,omitempty"`
	CommonTopics      []string                `json:"commonTopics,omitempty"`
	MemoryTopics      []string                `json:"memoryTopics,omitempty"`
	Memory            memory.Stats            `json:"memory"`
	CrossPageLinks    int                     `json:"crossPageLinks"`
	Research          *models.ResearchSession `json:"research,omitempty"`
	Config            Config                  `json:"config"`
}

const summaryTopics = 5

// Summary returns counts, topics and the active research session.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	pages, convs := m.builder.Counts()
	s := Summary{
		PageCount:         pages,
		ConversationCount: convs,
		PrimaryTopic:      m.builder.PrimaryTopic(),
		CommonTopics:      m.builder.CommonTopics(),
		Memory:            m.memory.Stats(),
		CrossPageLinks:    m.crossPage.Links(),
		Config:            m.cfg,
	}
	if p, ok := m.builder.CurrentPage(); ok {
		s.CurrentPageID = p.PageID
	}
	for _, t := range m.memory.TopTopics(summaryTopics) {
		s.MemoryTopics = append(s.MemoryTopics, t.Value)
	}
	if r, ok := m.crossPage.ActiveResearch(); ok {
		s.Research = &r
	}
	return s
}
