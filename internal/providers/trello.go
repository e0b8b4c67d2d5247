package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

const (
	trelloAPIBaseURL = "https://api.trello.com/1/"
	trelloAPITimeout = 4 * time.Second
	trelloColor      = "#026AA7"

	// trelloMyCardsLayerID is a synthetic layer aggregating the user's
	// assigned cards across boards.
	trelloMyCardsLayerID = "kin_my_cards"
)

var TrelloScopes = []string{"read", "write"}

func newTrello(secrets Secrets) *Provider {
	eng := &engine.Provider{
		Name:    "trello",
		BaseURL: trelloAPIBaseURL,
		Timeout: trelloAPITimeout,
		BuildRequestOptions: func(accessToken string, overrides engine.RequestOptions) engine.RequestOptions {
			base := engine.RequestOptions{
				Query: url.Values{
					"key":    {secrets.Get("TRELLO_KEY")},
					"token":  {accessToken},
					"filter": {"open"},
				},
			}
			return engine.Merge(base, overrides)
		},
		IsInvalidCreds: trelloInvalidCreds,
	}
	return &Provider{
		Engine:     eng,
		Scopes:     TrelloScopes,
		LoadLayers: trelloLoadLayers(eng),
	}
}

// trelloInvalidCreds matches the API's bare-text "invalid token" 401 body.
func trelloInvalidCreds(err error) bool {
	var he *engine.HTTPError
	if !errors.As(err, &he) {
		return false
	}
	return he.StatusCode == http.StatusUnauthorized &&
		strings.TrimSpace(string(he.Body)) == "invalid token"
}

type trelloBoard struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Prefs struct {
		BackgroundColor string `json:"backgroundColor"`
	} `json:"prefs"`
}

func trelloFormatLayer(sourceID string, board trelloBoard) model.Layer {
	layer := model.Layer{
		ID:        model.MergeIDs(sourceID, board.ID),
		Title:     board.Name,
		Color:     trelloColor,
		TextColor: "#FFFFFF",
		ACL: model.ACL{
			Edit:   true,
			Create: false,
			Delete: true,
		},
	}
	if board.Prefs.BackgroundColor != "" {
		layer.Color = board.Prefs.BackgroundColor
	}
	return layer
}

func trelloLoadLayers(eng *engine.Provider) func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
	return func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
		body, err := engine.NewRequest(eng, rc, src.ID).Do(ctx, "members/me/boards", engine.RequestOptions{})
		if err != nil {
			return nil, err
		}
		var boards []trelloBoard
		if err := json.Unmarshal(body, &boards); err != nil {
			return nil, err
		}
		layers := make([]model.Layer, 0, len(boards)+1)
		layers = append(layers, model.Layer{
			ID:        model.MergeIDs(src.ID, trelloMyCardsLayerID),
			Title:     "My Cards",
			Color:     trelloColor,
			TextColor: "#FFFFFF",
			ACL: model.ACL{
				Edit:   true,
				Create: false,
				Delete: true,
			},
			Selected: true,
		})
		for _, board := range boards {
			layers = append(layers, trelloFormatLayer(src.ID, board))
		}
		return layers, nil
	}
}
