package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/transport"
	"github.com/zapflow/bot-server-go/internal/util"
)

// Sender is the outbound side the dialogue engine talks to.
type Sender interface {
	SendText(ctx context.Context, tenantID, contactID, text string, direction model.Direction) error
	SendDetail(ctx context.Context, tenantID, contactID, text string, direction model.Direction) error
	SendMedia(ctx context.Context, tenantID, contactID, uri, caption string, direction model.Direction) error
}

const (
	optionSearch   = "1"
	optionHandover = "2"
	optionFAQ      = "3"
)

var resetKeywords = map[string]struct{}{
	"menu":   {},
	"início": {},
	"inicio": {},
	"voltar": {},
}

type DialogueConfig struct {
	SearchLimit         int
	CollaboratorTimeout time.Duration
}

// DialogueEngine drives the per-contact menu conversation.
type DialogueEngine struct {
	state   *StateStore
	sender  Sender
	catalog CatalogSearcher
	faq     FAQMatcher
	leads   LeadTracker
	msgs    Messages
	cfg     DialogueConfig
}

func NewDialogueEngine(
	state *StateStore,
	sender Sender,
	catalog CatalogSearcher,
	faq FAQMatcher,
	leads LeadTracker,
	msgs Messages,
	cfg DialogueConfig,
) *DialogueEngine {
	return &DialogueEngine{
		state:   state,
		sender:  sender,
		catalog: catalog,
		faq:     faq,
		leads:   leads,
		msgs:    msgs,
		cfg:     cfg,
	}
}

// Handle processes one inbound customer message. Collaborator failures are
// logged and answered with a fallback; only send failures are returned.
func (e *DialogueEngine) Handle(ctx context.Context, tenantID, contactID, text, displayName string) error {
	if e.state.IsPaused(tenantID) {
		return nil
	}

	e.recordLead(ctx, tenantID, contactID, text, displayName)

	normalized := strings.ToLower(strings.TrimSpace(text))
	mode, known := e.state.Get(tenantID, contactID)

	if _, ok := resetKeywords[normalized]; ok {
		e.state.Set(tenantID, contactID, model.ConversationModeMenu)
		if known {
			return e.reply(ctx, tenantID, contactID, e.msgs.Menu)
		}
		return e.reply(ctx, tenantID, contactID, e.msgs.WelcomeMenu())
	}

	if !known {
		return e.handleMenu(ctx, tenantID, contactID, text, normalized, true)
	}

	switch mode {
	case model.ConversationModeHandover:
		return nil
	case model.ConversationModeWaitingFAQ:
		return e.handleFAQ(ctx, tenantID, contactID, text)
	default:
		return e.handleMenu(ctx, tenantID, contactID, text, normalized, false)
	}
}

// handleMenu answers a menu option or runs a catalog search. On a first
// contact the welcome is folded into the reply instead of sent separately.
func (e *DialogueEngine) handleMenu(ctx context.Context, tenantID, contactID, text, normalized string, first bool) error {
	greet := func(s string) string {
		if !first {
			return s
		}
		return e.msgs.Welcome + "\n\n" + s
	}

	switch normalized {
	case optionSearch:
		e.state.Set(tenantID, contactID, model.ConversationModeMenu)
		return e.reply(ctx, tenantID, contactID, greet(e.msgs.SearchPrompt))
	case optionHandover:
		e.state.Set(tenantID, contactID, model.ConversationModeHandover)
		return e.reply(ctx, tenantID, contactID, greet(e.msgs.Handover))
	case optionFAQ:
		e.state.Set(tenantID, contactID, model.ConversationModeWaitingFAQ)
		return e.reply(ctx, tenantID, contactID, greet(e.msgs.FAQPrompt))
	}

	e.state.Set(tenantID, contactID, model.ConversationModeMenu)
	return e.search(ctx, tenantID, contactID, strings.TrimSpace(text), first)
}

func (e *DialogueEngine) search(ctx context.Context, tenantID, contactID, query string, first bool) error {
	menu := e.msgs.Menu
	if first {
		menu = e.msgs.WelcomeMenu()
	}

	items, err := e.searchCatalog(ctx, tenantID, query)
	if err != nil {
		log.Error().
			Err(err).
			Str("tenantId", tenantID).
			Str("contactId", util.MaskContact(contactID)).
			Msg("catalog search failed")
		if !first {
			if err := e.reply(ctx, tenantID, contactID, e.msgs.SearchFailed); err != nil {
				return err
			}
		}
		return e.reply(ctx, tenantID, contactID, menu)
	}

	if len(items) == 0 {
		if !first {
			if err := e.reply(ctx, tenantID, contactID, e.msgs.NoResults); err != nil {
				return err
			}
		}
		return e.reply(ctx, tenantID, contactID, menu)
	}

	if e.cfg.SearchLimit > 0 && len(items) > e.cfg.SearchLimit {
		items = items[:e.cfg.SearchLimit]
	}

	for _, item := range items {
		if uri := firstMediaURI(item); uri != "" {
			if err := e.sender.SendMedia(ctx, tenantID, contactID, uri, "", model.DirectionBot); err != nil {
				if errors.Is(err, transport.ErrNotConnected) {
					return err
				}
				log.Warn().
					Err(err).
					Str("tenantId", tenantID).
					Str("itemId", item.ID).
					Msg("failed to send item media")
			}
		}
		if err := e.sender.SendDetail(ctx, tenantID, contactID, e.msgs.FormatItem(item), model.DirectionBot); err != nil {
			return err
		}
	}

	return e.reply(ctx, tenantID, contactID, menu)
}

func (e *DialogueEngine) handleFAQ(ctx context.Context, tenantID, contactID, text string) error {
	answer, ok, err := e.matchFAQ(ctx, tenantID, text)
	if err != nil {
		log.Error().
			Err(err).
			Str("tenantId", tenantID).
			Str("contactId", util.MaskContact(contactID)).
			Msg("faq match failed")
	}

	if !ok {
		return e.reply(ctx, tenantID, contactID, e.msgs.FAQRetry)
	}

	e.state.Set(tenantID, contactID, model.ConversationModeMenu)
	if err := e.reply(ctx, tenantID, contactID, answer); err != nil {
		return err
	}
	return e.reply(ctx, tenantID, contactID, e.msgs.Menu)
}

func (e *DialogueEngine) searchCatalog(ctx context.Context, tenantID, query string) ([]model.CatalogItem, error) {
	if e.catalog == nil {
		return nil, nil
	}
	ctx, cancel := e.collaboratorContext(ctx)
	defer cancel()
	return e.catalog.Search(ctx, tenantID, query, e.cfg.SearchLimit)
}

func (e *DialogueEngine) matchFAQ(ctx context.Context, tenantID, text string) (string, bool, error) {
	if e.faq == nil {
		return "", false, nil
	}
	ctx, cancel := e.collaboratorContext(ctx)
	defer cancel()
	return e.faq.Match(ctx, tenantID, text)
}

func (e *DialogueEngine) recordLead(ctx context.Context, tenantID, contactID, text, displayName string) {
	if e.leads == nil {
		return
	}
	ctx, cancel := e.collaboratorContext(ctx)
	defer cancel()

	if err := e.leads.RecordInteraction(ctx, tenantID, contactID, text, displayName); err != nil {
		log.Warn().
			Err(err).
			Str("tenantId", tenantID).
			Str("contactId", util.MaskContact(contactID)).
			Msg("failed to record lead interaction")
	}
}

func (e *DialogueEngine) collaboratorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CollaboratorTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.CollaboratorTimeout)
}

func (e *DialogueEngine) reply(ctx context.Context, tenantID, contactID, text string) error {
	return e.sender.SendText(ctx, tenantID, contactID, text, model.DirectionBot)
}

func firstMediaURI(item model.CatalogItem) string {
	for _, uri := range item.MediaURIs {
		if uri = strings.TrimSpace(uri); uri != "" {
			return uri
		}
	}
	return ""
}
