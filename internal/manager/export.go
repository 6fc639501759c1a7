package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raphaelgruber/pagewise/internal/builder"
	"github.com/raphaelgruber/pagewise/internal/crosspage"
	"github.com/raphaelgruber/pagewise/internal/memory"
	"github.com/raphaelgruber/pagewise/internal/metrics"
)

// ExportVersion is the only export layout ImportAllContext accepts.
const ExportVersion = "1.0"

// BuilderExport wraps the session aggregate.
type BuilderExport struct {
	SessionContext builder.Snapshot `json:"sessionContext"`
}

// Export is the full serialized session.
type Export struct {
	Version            string             `json:"version"`
	Exported           time.Time          `json:"exported"`
	ContextBuilder     BuilderExport      `json:"contextBuilder"`
	ConversationMemory memory.Snapshot    `json:"conversationMemory"`
	CrossPageContext   crosspage.Snapshot `json:"crossPageContext"`
	Config             Config             `json:"config"`
	Metrics            metrics.Snapshot   `json:"metrics"`
}

// ExportAllContext snapshots every component.
func (m *Manager) ExportAllContext(ctx context.Context) (*Export, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return &Export{
		Version:            ExportVersion,
		Exported:           m.clock.Now(),
		ContextBuilder:     BuilderExport{SessionContext: m.builder.Snapshot()},
		ConversationMemory: m.memory.Snapshot(),
		CrossPageContext:   m.crossPage.Snapshot(),
		Config:             m.cfg,
		Metrics:            m.metrics.Snapshot(),
	}, nil
}

// ImportAllContext replaces the session with doc. It fails with
// ErrIncompatibleVersion when doc has another version and leaves the
// session untouched.
func (m *Manager) ImportAllContext(ctx context.Context, doc *Export) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrIncompatibleVersion)
	}
	if doc.Version != ExportVersion {
		return fmt.Errorf("%w: %q", ErrIncompatibleVersion, doc.Version)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.builder.Restore(doc.ContextBuilder.SessionContext)
	m.memory.Restore(doc.ConversationMemory)
	m.crossPage.Restore(doc.CrossPageContext)
	m.cfg = doc.Config
	m.setAutoResearch(doc.Config.AutoResearch)
	m.metrics.Restore(doc.Metrics)

	pages, convs := m.builder.Counts()
	m.logger.Info("context imported",
		"exported", doc.Exported, "pages", pages, "conversations", convs,
		"memory_entities", doc.ConversationMemory.Stats.Entities)
	return nil
}

// MarshalExport exports the session as indented JSON.
func (m *Manager) MarshalExport(ctx context.Context) ([]byte, error) {
	doc, err := m.ExportAllContext(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}

// UnmarshalImport decodes data and imports it.
func (m *Manager) UnmarshalImport(ctx context.Context, data []byte) error {
	var doc Export
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode export: %w", err)
	}
	return m.ImportAllContext(ctx, &doc)
}
