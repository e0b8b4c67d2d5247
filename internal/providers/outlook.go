package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

const (
	outlookAPIBaseURL    = "https://outlook.office.com/api/v2.0/"
	outlookOAuthTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	outlookAPITimeout    = 8 * time.Second
)

var OutlookScopes = []string{
	"openid",
	"profile",
	"offline_access",
	"https://outlook.office.com/calendars.read",
}

// outlookColors maps the API's named palette to hex. Anything else,
// including "Auto", falls back to the default orange.
var outlookColors = map[string]string{
	"LightBlue":   "#a6d1f5",
	"LightTeal":   "#4adacc",
	"LightGreen":  "#87d28e",
	"LightGray":   "#c0c0c0",
	"LightRed":    "#f88c9b",
	"LightPink":   "#f08cc0",
	"LightBrown":  "#cba287",
	"LightOrange": "#fcab73",
	"LightYellow": "#f4d07a",
}

const outlookDefaultColor = "#EB3D01"

func newOutlook(secrets Secrets) *Provider {
	eng := &engine.Provider{
		Name:            "outlook",
		BaseURL:         outlookAPIBaseURL,
		Timeout:         outlookAPITimeout,
		UseRefreshToken: true,
		BuildRequestOptions: func(accessToken string, overrides engine.RequestOptions) engine.RequestOptions {
			base := engine.RequestOptions{
				Headers: http.Header{"Authorization": {"Bearer " + accessToken}},
			}
			return engine.Merge(base, overrides)
		},
	}
	eng.RefreshToken = func(ctx context.Context, rc *engine.RequestContext, src *model.Source) error {
		form := url.Values{
			"client_id":     {secrets.Get("OUTLOOK_CLIENT_ID")},
			"client_secret": {secrets.Get("OUTLOOK_CLIENT_SECRET")},
			"grant_type":    {"refresh_token"},
			"refresh_token": {src.RefreshToken},
		}
		res, err := postTokenRequest(ctx, outlookOAuthTokenURL, nil, form, outlookAPITimeout)
		if err != nil {
			return err
		}
		// Microsoft rotates the refresh token on every grant.
		src.AccessToken = res.AccessToken
		src.RefreshToken = res.RefreshToken
		src.Status = model.StatusConnected
		return nil
	}
	return &Provider{
		Engine:     eng,
		Scopes:     OutlookScopes,
		LoadLayers: outlookLoadLayers(eng),
	}
}

type outlookCalendar struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	Color string `json:"Color"`
}

func outlookFormatLayer(sourceID string, cal outlookCalendar) model.Layer {
	color, ok := outlookColors[cal.Color]
	if !ok {
		color = outlookDefaultColor
	}
	return model.Layer{
		ID:        model.MergeIDs(sourceID, cal.ID),
		Title:     cal.Name,
		Color:     color,
		TextColor: "#FFFFFF",
	}
}

func outlookLoadLayers(eng *engine.Provider) func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
	return func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
		opts := engine.RequestOptions{
			Query: url.Values{
				"$select": {"Name,Color"},
				"$top":    {"50"},
			},
		}
		body, err := engine.NewRequest(eng, rc, src.ID).Do(ctx, "me/calendars", opts)
		if err != nil {
			return nil, err
		}
		var res struct {
			Value []outlookCalendar `json:"value"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, err
		}
		layers := make([]model.Layer, 0, len(res.Value))
		for _, cal := range res.Value {
			layers = append(layers, outlookFormatLayer(src.ID, cal))
		}
		return layers, nil
	}
}
