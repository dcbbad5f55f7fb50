// Package device manages device-wide flags and user-initiated resets of local storage.
package device

import (
	"context"

	"github.com/rs/zerolog"

	"example.com/userstate/internal/codec"
	"example.com/userstate/internal/keys"
	"example.com/userstate/internal/persistence"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service reads and writes device-wide keys in the local backend.
type Service struct {
	local  persistence.Local
	logger zerolog.Logger
}

// NewService constructs a Service.
func NewService(local persistence.Local, opts ...Option) *Service {
	s := &Service{local: local, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnboardingCompleted reports whether onboarding finished on this device.
// Unreadable values count as not completed.
func (s *Service) OnboardingCompleted(ctx context.Context) bool {
	raw, ok, err := s.local.Get(ctx, string(keys.OnboardingCompleted))
	if err != nil {
		s.logger.Warn().Err(err).Msg("onboarding flag unreadable")
		return false
	}
	if !ok {
		return false
	}
	return codec.DecodeOr(raw, false)
}

// MarkOnboardingCompleted sets the onboarding flag.
func (s *Service) MarkOnboardingCompleted(ctx context.Context) error {
	text, err := codec.Encode(true)
	if err != nil {
		return err
	}
	return s.local.Set(ctx, string(keys.OnboardingCompleted), text)
}

// ResetDomain removes every local record of domain and returns how many were removed.
// Other domains and device-wide keys are untouched.
func (s *Service) ResetDomain(ctx context.Context, domain keys.Domain) (int, error) {
	all, err := s.local.ListKeys(ctx)
	if err != nil {
		return 0, err
	}
	var doomed []string
	for _, k := range all {
		if d, _, ok := keys.Key(k).Split(); ok && d == domain {
			doomed = append(doomed, k)
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	if err := s.local.MultiRemove(ctx, doomed...); err != nil {
		return 0, err
	}
	s.logger.Info().Str("domain", domain.String()).Int("removed", len(doomed)).Msg("domain reset")
	return len(doomed), nil
}

// ResetAll erases all local state on the device. It must only run on an
// explicit user request.
func (s *Service) ResetAll(ctx context.Context) error {
	if err := s.local.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info().Msg("device storage cleared")
	return nil
}
