package providers

import (
	"context"
	"net/url"
	"time"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

const (
	meetupAPIBaseURL    = "https://api.meetup.com/"
	meetupOAuthTokenURL = "https://secure.meetup.com/oauth2/access"
	meetupAPITimeout    = 4 * time.Second
)

var MeetupScopes = []string{"basic"}

func newMeetup(secrets Secrets) *Provider {
	eng := &engine.Provider{
		Name:            "meetup",
		BaseURL:         meetupAPIBaseURL,
		Timeout:         meetupAPITimeout,
		UseRefreshToken: true,
		BuildRequestOptions: func(accessToken string, overrides engine.RequestOptions) engine.RequestOptions {
			base := engine.RequestOptions{
				Query: url.Values{"access_token": {accessToken}},
			}
			return engine.Merge(base, overrides)
		},
	}
	eng.RefreshToken = func(ctx context.Context, rc *engine.RequestContext, src *model.Source) error {
		// Meetup takes the grant parameters in the query string while
		// still expecting a form content type.
		query := url.Values{
			"client_id":     {secrets.Get("MEETUP_CLIENT_ID")},
			"client_secret": {secrets.Get("MEETUP_CLIENT_SECRET")},
			"grant_type":    {"refresh_token"},
			"refresh_token": {src.RefreshToken},
		}
		res, err := postTokenRequest(ctx, meetupOAuthTokenURL, query, nil, meetupAPITimeout)
		if err != nil {
			return err
		}
		src.AccessToken = res.AccessToken
		src.RefreshToken = res.RefreshToken
		src.Status = model.StatusConnected
		return nil
	}
	return &Provider{
		Engine:     eng,
		Scopes:     MeetupScopes,
		LoadLayers: meetupLoadLayers,
	}
}

func meetupLoadLayers(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
	return []model.Layer{
		{
			ID:        model.MergeIDs(src.ID, "events_attending"),
			Title:     "Events I'm attending",
			Color:     "#ED1C40",
			TextColor: "#FFFFFF",
			Selected:  true,
		},
	}, nil
}
