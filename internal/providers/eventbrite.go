package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

const (
	eventbriteAPIBaseURL = "https://www.eventbriteapi.com/v3/"
	eventbriteAPITimeout = 8 * time.Second
	eventbriteColor      = "#FF8400"
)

var EventbriteScopes = []string{}

func newEventbrite() *Provider {
	eng := &engine.Provider{
		Name:    "eventbrite",
		BaseURL: eventbriteAPIBaseURL,
		Timeout: eventbriteAPITimeout,
		BuildRequestOptions: func(accessToken string, overrides engine.RequestOptions) engine.RequestOptions {
			base := engine.RequestOptions{
				Headers: http.Header{"Authorization": {"Bearer " + accessToken}},
			}
			return engine.Merge(base, overrides)
		},
		IsInvalidCreds: eventbriteInvalidCreds,
	}
	return &Provider{
		Engine:     eng,
		Scopes:     EventbriteScopes,
		LoadLayers: eventbriteLoadLayers,
	}
}

// eventbriteInvalidCreds reads the status code nested in the error body;
// the transport status alone is not specific enough.
func eventbriteInvalidCreds(err error) bool {
	var he *engine.HTTPError
	if !errors.As(err, &he) {
		return false
	}
	var body struct {
		StatusCode int `json:"status_code"`
	}
	if he.DecodeJSON(&body) != nil {
		return false
	}
	return body.StatusCode == http.StatusUnauthorized
}

func eventbriteLoadLayers(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
	return []model.Layer{
		{
			ID:        model.MergeIDs(src.ID, "events_attending"),
			Title:     "Events I'm attending",
			Color:     eventbriteColor,
			TextColor: "#FFFFFF",
			Selected:  true,
		},
		{
			ID:        model.MergeIDs(src.ID, "events_organizing"),
			Title:     "Events I'm organizing",
			Color:     eventbriteColor,
			TextColor: "#FFFFFF",
			Selected:  false,
		},
	}, nil
}
