package redemption

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/pkg/id"
	"github.com/go-redemption-api/internal/pkg/phone"
)

// Validate checks that token names a live link held by the phone in the URL and returns what
// the redemption form shows. It never writes.
func (s *service) Validate(ctx context.Context, rawPhone, token string) (*domain.LinkSummary, error) {
	if !id.IsToken(token) {
		return nil, fmt.Errorf("link not found: %w", domain.ErrNotFound)
	}
	p, err := s.phones.Canonical(phone.FromPath(rawPhone))
	if err != nil {
		return nil, fmt.Errorf("link not found: %w", domain.ErrNotFound)
	}
	link, err := s.links.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if link.Phone != p {
		return nil, fmt.Errorf("link not found: %w", domain.ErrNotFound)
	}
	if link.State == domain.LinkRedeemed {
		return nil, fmt.Errorf("link %s: %w", token, domain.ErrAlreadyRedeemed)
	}
	ev, err := s.events.Get(ctx, link.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("event for link not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return &domain.LinkSummary{Link: link, Event: ev}, nil
}
