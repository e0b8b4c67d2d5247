package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

const (
	todoistAPIBaseURL = "https://todoist.com/API/v7/"
	todoistAPITimeout = 4 * time.Second
)

var TodoistScopes = []string{
	// https://developer.todoist.com/#oauth
	"data:read_write",
	"data:delete",
}

// todoistColors indexes the project color palette, free then premium.
var todoistColors = []string{
	"#95ef63", "#ff8581", "#ffc471", "#f9ec75", "#a8c8e4",
	"#d2b8a3", "#e2a8e4", "#cccccc", "#fb886e", "#ffcc00",
	"#74e8d3", "#3bd5fb",

	"#dc4fad", "#ac193d", "#d24726", "#82ba00", "#03b3b2",
	"#008299", "#5db2ff", "#0072c6", "#000000", "#777777",
}

func newTodoist() *Provider {
	eng := &engine.Provider{
		Name:    "todoist",
		BaseURL: todoistAPIBaseURL,
		Timeout: todoistAPITimeout,
		BuildRequestOptions: func(accessToken string, overrides engine.RequestOptions) engine.RequestOptions {
			base := engine.RequestOptions{
				Method: http.MethodPost,
				Form: url.Values{
					"token": {accessToken},
				},
			}
			return engine.Merge(base, overrides)
		},
		IsInvalidCreds: todoistInvalidCreds,
	}
	return &Provider{
		Engine:     eng,
		Scopes:     TodoistScopes,
		LoadLayers: todoistLoadLayers(eng),
	}
}

func todoistInvalidCreds(err error) bool {
	var he *engine.HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusForbidden
}

type todoistProject struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color int    `json:"color"`
}

func todoistFormatLayer(sourceID string, project todoistProject) model.Layer {
	color := todoistColors[0]
	if project.Color >= 0 && project.Color < len(todoistColors) {
		color = todoistColors[project.Color]
	}
	return model.Layer{
		ID:        model.MergeIDs(sourceID, strconv.FormatInt(project.ID, 10)),
		Title:     project.Name,
		Color:     color,
		TextColor: "#FFFFFF",
		ACL: model.ACL{
			Edit:   true,
			Create: true,
			Delete: true,
		},
	}
}

func todoistLoadLayers(eng *engine.Provider) func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
	return func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
		opts := engine.RequestOptions{
			Form: url.Values{
				"resource_types": {`["projects"]`},
				"sync_token":     {"*"},
			},
		}
		body, err := engine.NewRequest(eng, rc, src.ID).Do(ctx, "sync", opts)
		if err != nil {
			return nil, err
		}
		var res struct {
			Projects []todoistProject `json:"projects"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, err
		}
		layers := make([]model.Layer, 0, len(res.Projects))
		for _, project := range res.Projects {
			layers = append(layers, todoistFormatLayer(src.ID, project))
		}
		return layers, nil
	}
}
