// Package source implements the link/unlink lifecycle of provider
// accounts: login-or-link on an OAuth callback, alias-guarded attachment,
// default layer selection, and deauthorization.
package source

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/metrics"
	"github.com/xjonsson/kin-api-server/internal/model"
	"github.com/xjonsson/kin-api-server/internal/providers"
	"github.com/xjonsson/kin-api-server/internal/store"
)

// Service coordinates sources across the store, the provider registry and
// the request engine.
type Service struct {
	st      *store.Store
	reg     *providers.Registry
	metrics *metrics.Collector
	log     *slog.Logger
}

func NewService(st *store.Store, reg *providers.Registry, m *metrics.Collector, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{st: st, reg: reg, metrics: m, log: log}
}

// NewRequestContext builds an engine context bound to this service's
// metrics and logger.
func (s *Service) NewRequestContext(u *store.User) *engine.RequestContext {
	rc := engine.NewRequestContext(u)
	rc.Metrics = s.metrics
	rc.Log = s.log
	return rc
}

// ValidateSource rejects operations against unknown or disconnected
// sources before any outbound call is made.
func (s *Service) ValidateSource(rc *engine.RequestContext, sourceID string) error {
	src := rc.User().GetSource(sourceID)
	if src == nil {
		return model.NewSourceNotFoundError(sourceID)
	}
	if src.Status == model.StatusDisconnected {
		return model.NewDisconnectedSourceError(sourceID)
	}
	return nil
}

// AutoloadSelectedLayers lists the provider's layers and turns on those
// the provider flags selected by default. The user's own selections,
// stored per layer id, override these later.
func (s *Service) AutoloadSelectedLayers(ctx context.Context, rc *engine.RequestContext, src *model.Source) error {
	p, err := s.reg.ForSource(src.ID)
	if err != nil {
		return err
	}
	layers, err := p.LoadLayers(ctx, rc, src)
	if err != nil {
		return err
	}
	for _, layer := range layers {
		if layer.Selected {
			rc.User().ToggleSelectedLayer(layer.ID, true)
		}
	}
	return nil
}

// SaveSource links a freshly authorized source to the logged-in user:
// alias-guarded attachment, default layer selection, provider post-link
// work, then a save.
func (s *Service) SaveSource(ctx context.Context, rc *engine.RequestContext, src *model.Source) error {
	u := rc.User()
	if err := u.AddSource(ctx, src, true); err != nil {
		return err
	}
	if err := s.AutoloadSelectedLayers(ctx, rc, src); err != nil {
		return err
	}
	p, err := s.reg.ForSource(src.ID)
	if err != nil {
		return err
	}
	if p.PostLink != nil {
		if err := p.PostLink(ctx, rc, src); err != nil {
			return err
		}
	}
	s.log.Debug("added source",
		"correlation_id", rc.ID,
		"source_id", src.ID,
		"user_id", u.ID())
	return u.Save(ctx)
}

// SaveToken implements login-or-link on an OAuth authentication callback.
// The source identity resolves to its owner through the alias; an unknown
// identity creates a user whose id is that first source's id.
func (s *Service) SaveToken(ctx context.Context, profile model.Profile, accessToken, refreshToken string) (*store.User, error) {
	sourceID := model.SourceID(profile.Provider, profile.ID)
	src := model.NewSource(profile, accessToken, refreshToken)

	userID := sourceID
	ownerID, found, err := s.st.LookupAlias(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if found {
		userID = ownerID
	}

	u, err := s.st.Load(ctx, userID)
	switch {
	case err == nil:
		// Known user: refresh the stored credentials, keeping side-loaded
		// state (google colors) the new source does not carry.
		if prev := u.GetSource(sourceID); prev != nil && src.Colors == nil {
			src.Colors = prev.Colors
		}
		if err := u.AddSource(ctx, src, false); err != nil {
			return nil, err
		}
	case isUnauthenticated(err):
		u = store.NewUser(s.st, sourceID)
		u.SetDisplayName(profile.DisplayName)
		if err := u.AddSource(ctx, src, true); err != nil {
			return nil, err
		}
		rc := s.NewRequestContext(u)
		if err := s.AutoloadSelectedLayers(ctx, rc, src); err != nil {
			return nil, err
		}
		p, perr := s.reg.ForSource(src.ID)
		if perr != nil {
			return nil, perr
		}
		if p.PostLink != nil {
			if err := p.PostLink(ctx, rc, src); err != nil {
				return nil, err
			}
		}
	default:
		return nil, err
	}

	if err := u.Save(ctx); err != nil {
		return nil, err
	}
	s.log.Debug("saved user on authentication",
		"user_id", u.ID(),
		"source_id", sourceID)
	return u, nil
}

// ListLayers lists a source's layers with the user's stored selection
// applied over the provider defaults.
func (s *Service) ListLayers(ctx context.Context, rc *engine.RequestContext, sourceID string) ([]model.Layer, error) {
	if err := s.ValidateSource(rc, sourceID); err != nil {
		return nil, err
	}
	p, err := s.reg.ForSource(sourceID)
	if err != nil {
		return nil, err
	}
	layers, err := p.LoadLayers(ctx, rc, rc.User().GetSource(sourceID))
	if err != nil {
		return nil, err
	}
	for i := range layers {
		layers[i].Selected = rc.User().IsLayerSelected(layers[i].ID)
	}
	s.log.Debug("loaded layers",
		"correlation_id", rc.ID,
		"source_id", sourceID,
		"count", len(layers))
	return layers, nil
}

// Deauth removes a source from the user and releases its alias.
func (s *Service) Deauth(ctx context.Context, rc *engine.RequestContext, sourceID string) error {
	u := rc.User()
	src := u.GetSource(sourceID)
	if src == nil {
		return model.NewSourceNotFoundError(sourceID)
	}
	if err := u.DeleteSource(ctx, src); err != nil {
		return err
	}
	s.log.Debug("removed source",
		"correlation_id", rc.ID,
		"source_id", sourceID,
		"user_id", u.ID())
	return u.Save(ctx)
}

func isUnauthenticated(err error) bool {
	var me *model.Error
	return errors.As(err, &me) && me.Code == model.CodeUnauthenticated
}
