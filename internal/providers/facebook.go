package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"time"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

const (
	facebookAPIBaseURL = "https://graph.facebook.com/v2.7/"
	facebookAPITimeout = 4 * time.Second
	facebookColor      = "#3B5998"
)

var FacebookScopes = []string{
	"user_events",
	"rsvp_event",
}

func newFacebook(secrets Secrets) *Provider {
	eng := &engine.Provider{
		Name:    "facebook",
		BaseURL: facebookAPIBaseURL,
		Timeout: facebookAPITimeout,
		BuildRequestOptions: func(accessToken string, overrides engine.RequestOptions) engine.RequestOptions {
			base := engine.RequestOptions{
				Query: url.Values{
					"access_token":    {accessToken},
					"appsecret_proof": {facebookAppSecretProof(secrets.Get("FACEBOOK_CLIENT_SECRET"), accessToken)},
				},
			}
			return engine.Merge(base, overrides)
		},
		IsInvalidCreds: facebookInvalidCreds,
	}
	return &Provider{
		Engine:     eng,
		Scopes:     FacebookScopes,
		LoadLayers: facebookLoadLayers,
	}
}

// facebookAppSecretProof signs the access token with the app secret, as
// required for server-side Graph calls.
func facebookAppSecretProof(appSecret, accessToken string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// facebookInvalidCreds matches Graph OAuthException envelopes. When a
// subcode is present only expiration (463), password change (460) and app
// revocation (458) count; other subcodes are transient Graph conditions.
// https://developers.facebook.com/docs/graph-api/using-graph-api#errors
func facebookInvalidCreds(err error) bool {
	var he *engine.HTTPError
	if !errors.As(err, &he) {
		return false
	}
	var body struct {
		Error *struct {
			Type         string `json:"type"`
			ErrorSubcode *int   `json:"error_subcode"`
		} `json:"error"`
	}
	if he.DecodeJSON(&body) != nil || body.Error == nil {
		return false
	}
	if body.Error.Type != "OAuthException" {
		return false
	}
	if body.Error.ErrorSubcode != nil {
		switch *body.Error.ErrorSubcode {
		case 463, 460, 458:
		default:
			return false
		}
	}
	return true
}

// facebookLoadLayers is static: the Graph exposes RSVP buckets, not
// user-defined calendars.
func facebookLoadLayers(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
	buckets := []struct {
		id       string
		title    string
		selected bool
	}{
		{"events_attending", "Attending", true},
		{"events_tentative", "Maybe / Interested", true},
		{"events_not_replied", "Not Replied ", false},
		{"events_created", "Created", false},
		{"events_declined", "Declined", false},
	}
	layers := make([]model.Layer, 0, len(buckets))
	for _, b := range buckets {
		layers = append(layers, model.Layer{
			ID:        model.MergeIDs(src.ID, b.id),
			Title:     b.title,
			Color:     facebookColor,
			TextColor: "#FFFFFF",
			Selected:  b.selected,
		})
	}
	return layers, nil
}
