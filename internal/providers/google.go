package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

const (
	googleAPIBaseURL    = "https://www.googleapis.com/calendar/v3/"
	googleOAuthTokenURL = "https://www.googleapis.com/oauth2/v4/token"
	googleAPITimeout    = 4 * time.Second

	// Google reports weather layers with a title of "Weather: <Random
	// City>"; strip the city.
	googleWeatherLayerID = "p#weather@group.v.calendar.google.com"
)

// GoogleScopes also carries profile+email, needed for the OAuth profile.
var GoogleScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/contacts.readonly",
	"profile",
	"email",
}

func newGoogle(secrets Secrets) *Provider {
	eng := &engine.Provider{
		Name:            "google",
		BaseURL:         googleAPIBaseURL,
		Timeout:         googleAPITimeout,
		UseRefreshToken: true,
		BuildRequestOptions: func(accessToken string, overrides engine.RequestOptions) engine.RequestOptions {
			base := engine.RequestOptions{
				Headers: http.Header{"Authorization": {"Bearer " + accessToken}},
			}
			return engine.Merge(base, overrides)
		},
		IsInvalidCreds: googleInvalidCreds,
	}
	eng.RefreshToken = func(ctx context.Context, rc *engine.RequestContext, src *model.Source) error {
		form := url.Values{
			"client_id":     {secrets.Get("GOOGLE_CLIENT_ID")},
			"client_secret": {secrets.Get("GOOGLE_CLIENT_SECRET")},
			"grant_type":    {"refresh_token"},
			"refresh_token": {src.RefreshToken},
		}
		res, err := postTokenRequest(ctx, googleOAuthTokenURL, nil, form, googleAPITimeout)
		if err != nil {
			return err
		}
		src.AccessToken = res.AccessToken
		src.Status = model.StatusConnected
		return nil
	}
	return &Provider{
		Engine:     eng,
		Scopes:     GoogleScopes,
		LoadLayers: googleLoadLayers(eng),
		PostLink:   googleLoadColors(eng),
	}
}

// googleInvalidCreds matches a 401, or the token endpoint's
// 400 invalid_grant (revoked refresh token).
func googleInvalidCreds(err error) bool {
	var he *engine.HTTPError
	if !errors.As(err, &he) {
		return false
	}
	if he.StatusCode == http.StatusUnauthorized {
		return true
	}
	if he.StatusCode != http.StatusBadRequest {
		return false
	}
	var body struct {
		Error string `json:"error"`
	}
	if he.DecodeJSON(&body) != nil {
		return false
	}
	return body.Error == "invalid_grant"
}

type googleCalendar struct {
	ID              string `json:"id"`
	Summary         string `json:"summary"`
	SummaryOverride string `json:"summaryOverride"`
	AccessRole      string `json:"accessRole"`
	BackgroundColor string `json:"backgroundColor"`
	ForegroundColor string `json:"foregroundColor"`
	Selected        *bool  `json:"selected"`
}

func googleFormatLayer(sourceID string, cal googleCalendar) model.Layer {
	writable := cal.AccessRole == "owner" || cal.AccessRole == "writer"
	layer := model.Layer{
		ID:        model.MergeIDs(sourceID, cal.ID),
		Title:     cal.Summary,
		Color:     cal.BackgroundColor,
		TextColor: cal.ForegroundColor,
		ACL: model.ACL{
			Edit:   writable,
			Create: writable,
			Delete: writable,
		},
	}
	if cal.SummaryOverride != "" {
		layer.Title = cal.SummaryOverride
	}
	if cal.ID == googleWeatherLayerID && cal.SummaryOverride == "" {
		layer.Title = "Weather"
	}
	if cal.Selected != nil {
		layer.Selected = *cal.Selected
	}
	return layer
}

func googleLoadLayers(eng *engine.Provider) func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
	return func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
		body, err := engine.NewRequest(eng, rc, src.ID).Do(ctx, "users/me/calendarList", engine.RequestOptions{})
		if err != nil {
			return nil, err
		}
		var res struct {
			Items []googleCalendar `json:"items"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, err
		}
		layers := make([]model.Layer, 0, len(res.Items))
		for _, cal := range res.Items {
			layers = append(layers, googleFormatLayer(src.ID, cal))
		}
		return layers, nil
	}
}

// googleLoadColors side-loads the event color palette onto the source
// right after linking; event translators resolve color ids against it.
func googleLoadColors(eng *engine.Provider) func(ctx context.Context, rc *engine.RequestContext, src *model.Source) error {
	return func(ctx context.Context, rc *engine.RequestContext, src *model.Source) error {
		body, err := engine.NewRequest(eng, rc, src.ID).Do(ctx, "colors", engine.RequestOptions{})
		if err != nil {
			return err
		}
		var res struct {
			Event json.RawMessage `json:"event"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return err
		}
		src.Colors = res.Event
		return rc.User().AddSource(ctx, src, false)
	}
}
