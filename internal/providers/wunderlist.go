package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

const (
	wunderlistAPIBaseURL = "https://a.wunderlist.com/api/v1/"
	wunderlistAPITimeout = 4 * time.Second
	wunderlistColor      = "#E84228"
)

var WunderlistScopes = []string{}

func newWunderlist(secrets Secrets) *Provider {
	eng := &engine.Provider{
		Name:    "wunderlist",
		BaseURL: wunderlistAPIBaseURL,
		Timeout: wunderlistAPITimeout,
		BuildRequestOptions: func(accessToken string, overrides engine.RequestOptions) engine.RequestOptions {
			base := engine.RequestOptions{
				Headers: http.Header{
					"X-Client-Id":    {secrets.Get("WUNDERLIST_CLIENT_ID")},
					"X-Access-Token": {accessToken},
				},
			}
			return engine.Merge(base, overrides)
		},
		IsInvalidCreds: wunderlistInvalidCreds,
	}
	return &Provider{
		Engine:     eng,
		Scopes:     WunderlistScopes,
		LoadLayers: wunderlistLoadLayers(eng),
	}
}

func wunderlistInvalidCreds(err error) bool {
	var he *engine.HTTPError
	if !errors.As(err, &he) {
		return false
	}
	var body struct {
		Error *struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if he.DecodeJSON(&body) != nil || body.Error == nil {
		return false
	}
	return body.Error.Type == "unauthorized"
}

type wunderlistList struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

func wunderlistLoadLayers(eng *engine.Provider) func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
	return func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
		body, err := engine.NewRequest(eng, rc, src.ID).Do(ctx, "lists", engine.RequestOptions{})
		if err != nil {
			return nil, err
		}
		var lists []wunderlistList
		if err := json.Unmarshal(body, &lists); err != nil {
			return nil, err
		}
		layers := make([]model.Layer, 0, len(lists))
		for _, list := range lists {
			layers = append(layers, model.Layer{
				ID:        model.MergeIDs(src.ID, strconv.FormatInt(list.ID, 10)),
				Title:     list.Title,
				Color:     wunderlistColor,
				TextColor: "#FFFFFF",
				ACL: model.ACL{
					Edit:   true,
					Create: true,
					Delete: true,
				},
				Selected: true,
			})
		}
		return layers, nil
	}
}
