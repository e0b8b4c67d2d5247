package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

const (
	githubAPIBaseURL = "https://api.github.com/"
	githubAPITimeout = 4 * time.Second
)

var GithubScopes = []string{"repo"}

func newGithub() *Provider {
	eng := &engine.Provider{
		Name:    "github",
		BaseURL: githubAPIBaseURL,
		Timeout: githubAPITimeout,
		BuildRequestOptions: func(accessToken string, overrides engine.RequestOptions) engine.RequestOptions {
			base := engine.RequestOptions{
				Headers: http.Header{
					"Authorization": {"token " + accessToken},
					"User-Agent":    {"Kin Calendar"},
				},
			}
			return engine.Merge(base, overrides)
		},
	}
	return &Provider{
		Engine:     eng,
		Scopes:     GithubScopes,
		LoadLayers: githubLoadLayers(eng),
	}
}

// Repo full names contain a slash, which collides with URL routing;
// normalized ids swap it for a backslash.
func githubNormalizeRepoID(fullName string) string {
	return strings.Replace(fullName, "/", `\`, 1)
}

func githubUnnormalizeRepoID(normalized string) string {
	return strings.Replace(normalized, `\`, "/", 1)
}

type githubRepo struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
}

func githubLoadLayers(eng *engine.Provider) func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
	return func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error) {
		body, err := engine.NewRequest(eng, rc, src.ID).Do(ctx, "user/repos", engine.RequestOptions{})
		if err != nil {
			return nil, err
		}
		var repos []githubRepo
		if err := json.Unmarshal(body, &repos); err != nil {
			return nil, err
		}
		layers := make([]model.Layer, 0, len(repos))
		for _, repo := range repos {
			layers = append(layers, model.Layer{
				ID:        model.MergeIDs(src.ID, githubNormalizeRepoID(repo.FullName)),
				Title:     repo.Name,
				Color:     "#000000",
				TextColor: "#FFFFFF",
				ACL: model.ACL{
					Edit:   true,
					Create: true,
					Delete: true,
				},
			})
		}
		return layers, nil
	}
}
