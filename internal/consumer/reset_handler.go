package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"example.com/userstate/internal/events"
	"example.com/userstate/internal/identity"
	"example.com/userstate/internal/keys"
)

// ResetFunc restores one identity's record in a domain to its defaults.
type ResetFunc func(ctx context.Context, id identity.Identity) error

// ResetHandler applies ResetRequested commands for durable identities.
// Ephemeral identities only exist on their device and are skipped.
type ResetHandler struct {
	resetters map[keys.Domain]ResetFunc
	logger    zerolog.Logger
}

// NewResetHandler constructs a handler dispatching to resetters by domain.
func NewResetHandler(resetters map[keys.Domain]ResetFunc, logger zerolog.Logger) *ResetHandler {
	return &ResetHandler{resetters: resetters, logger: logger}
}

// Handle implements Handler. Only a failing reset returns an error, so the
// message stays uncommitted and is retried.
func (h *ResetHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeResetRequested {
		recordSkipped("event_type")
		return nil
	}

	var req events.ResetRequested
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		h.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("reset payload unreadable")
		recordSkipped("payload")
		return nil
	}

	domain, err := keys.ParseDomain(req.Domain)
	if err != nil {
		h.logger.Warn().Err(err).Msg("reset for unknown domain")
		recordSkipped("domain")
		return nil
	}
	reset, ok := h.resetters[domain]
	if !ok {
		h.logger.Warn().Str("domain", domain.String()).Msg("no resetter for domain")
		recordSkipped("domain")
		return nil
	}

	id := identity.Parse(req.UserID)
	if !id.IsDurable() {
		recordSkipped("ephemeral")
		return nil
	}

	if err := reset(ctx, id); err != nil {
		return fmt.Errorf("reset %s for %s: %w", domain, req.UserID, err)
	}
	h.logger.Info().Str("domain", domain.String()).Str("user_id", req.UserID).Msg("reset applied")
	return nil
}
