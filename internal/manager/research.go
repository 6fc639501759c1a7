package manager

import (
	"context"

	"github.com/raphaelgruber/pagewise/internal/models"
)

const researchPrefix = "Research: "

// StartResearchSession opens a research session seeded with the current
// page. An empty name is derived from the session's most common topic.
func (m *Manager) StartResearchSession(ctx context.Context, name, goal string) (models.ResearchSession, error) {
	if err := ctx.Err(); err != nil {
		return models.ResearchSession{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cfg.EnableCrossPage {
		return models.ResearchSession{}, ErrCrossPageDisabled
	}
	return m.crossPage.StartResearch(name, goal)
}

// AddResearchFinding records content against the active session and the
// current page.
func (m *Manager) AddResearchFinding(ctx context.Context, content string) (models.Finding, error) {
	if err := ctx.Err(); err != nil {
		return models.Finding{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cfg.EnableCrossPage {
		return models.Finding{}, ErrCrossPageDisabled
	}
	return m.crossPage.AddFinding(content, "")
}

// EndResearchSession closes the active session.
func (m *Manager) EndResearchSession(ctx context.Context) (models.ResearchSession, error) {
	if err := ctx.Err(); err != nil {
		return models.ResearchSession{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cfg.EnableCrossPage {
		return models.ResearchSession{}, ErrCrossPageDisabled
	}
	return m.crossPage.EndResearch()
}

// ResearchSessions returns every research session, oldest first.
func (m *Manager) ResearchSessions() []models.ResearchSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crossPage.ResearchSessions()
}
