package service

import (
	"context"
	"strings"

	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/repository"
)

type CatalogSearcher interface {
	Search(ctx context.Context, tenantID, query string, limit int) ([]model.CatalogItem, error)
}

type FAQMatcher interface {
	Match(ctx context.Context, tenantID, message string) (answer string, ok bool, err error)
}

type LeadTracker interface {
	RecordInteraction(ctx context.Context, tenantID, contactID, text, displayName string) error
}

type CatalogService struct {
	repo repository.CatalogRepository
}

func NewCatalogService(repo repository.CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) Search(ctx context.Context, tenantID, query string, limit int) ([]model.CatalogItem, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	return s.repo.Search(ctx, tenantID, query, limit)
}

type FAQService struct {
	repo repository.FAQRepository
}

func NewFAQService(repo repository.FAQRepository) *FAQService {
	return &FAQService{repo: repo}
}

// Match returns the answer of the first entry whose trigger phrase appears
// in the message, ignoring case.
func (s *FAQService) Match(ctx context.Context, tenantID, message string) (string, bool, error) {
	entries, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		return "", false, err
	}

	lowered := strings.ToLower(message)
	for _, entry := range entries {
		trigger := strings.ToLower(strings.TrimSpace(entry.Trigger))
		if trigger == "" {
			continue
		}
		if strings.Contains(lowered, trigger) {
			return entry.Answer, true, nil
		}
	}
	return "", false, nil
}

type LeadService struct {
	repo repository.LeadRepository
}

func NewLeadService(repo repository.LeadRepository) *LeadService {
	return &LeadService{repo: repo}
}

func (s *LeadService) RecordInteraction(ctx context.Context, tenantID, contactID, text, displayName string) error {
	_, err := s.repo.Upsert(ctx, model.LeadInteraction{
		TenantID:    tenantID,
		ContactID:   contactID,
		Text:        text,
		DisplayName: displayName,
	})
	return err
}
