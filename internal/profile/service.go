package profile

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"

	"mentor-chat/internal/chat"
)

// Source is a profile store: Postgres or Mongo.
type Source interface {
	ResolveProfile(ctx context.Context, identity string, role chat.Role) (*chat.Profile, error)
	Search(ctx context.Context, query string, role chat.Role) ([]Record, error)
}

// Service resolves profiles through an optional cache. It is the
// chat.ProfileResolver the Directory uses for listings.
type Service struct {
	source Source
	cache  Cache
	ttl    time.Duration
	log    *log.Logger
}

func NewService(source Source, cache Cache, ttl time.Duration, logger *log.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{source: source, cache: cache, ttl: ttl, log: logger}
}

// ResolveProfile reads through the cache. Cache failures degrade to a direct
// lookup. Unknown participants are not cached so a profile registered later
// shows up on the next listing.
func (s *Service) ResolveProfile(ctx context.Context, identity string, role chat.Role) (*chat.Profile, error) {
	if s.cache != nil {
		p, hit, err := s.cache.Get(ctx, identity, role)
		if err != nil {
			s.log.Warn("profile cache get", "identity", identity, "err", err)
		} else if hit {
			return p, nil
		}
	}

	p, err := s.source.ResolveProfile(ctx, identity, role)
	if err != nil {
		return nil, err
	}
	if p != nil && s.cache != nil {
		if err := s.cache.Set(ctx, identity, role, p, s.ttl); err != nil {
			s.log.Warn("profile cache set", "identity", identity, "err", err)
		}
	}
	return p, nil
}

func (s *Service) Search(ctx context.Context, query string, role chat.Role) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}
	if !role.Valid() {
		return nil, &chat.ValidationError{Field: "role", Message: "must be initiator or responder"}
	}
	records, err := s.source.Search(ctx, query, role)
	if err != nil {
		return nil, err
	}
	return lo.Map(records, func(r Record, _ int) SearchResult {
		return SearchResult{
			Participant: chat.Participant{Identity: r.Identity, Role: r.Role},
			Name:        r.Name,
			Department:  r.Department,
		}
	}), nil
}

var _ chat.ProfileResolver = (*Service)(nil)
