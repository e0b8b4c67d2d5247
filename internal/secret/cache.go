package secret

import (
	"context"
	"fmt"
	"strings"
)

// Names of all secrets the gateway can use. Provider credentials left empty
// simply keep that provider unconfigured; they are not startup errors.
var knownNames = []string{
	"JWT_SECRET",

	"GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET",
	"FACEBOOK_CLIENT_ID",
	"FACEBOOK_CLIENT_SECRET",
	"OUTLOOK_CLIENT_ID",
	"OUTLOOK_CLIENT_SECRET",
	"TRELLO_KEY",
	"TRELLO_SECRET",
	"TODOIST_CLIENT_ID",
	"TODOIST_CLIENT_SECRET",
	"WUNDERLIST_CLIENT_ID",
	"WUNDERLIST_CLIENT_SECRET",
	"MEETUP_CLIENT_ID",
	"MEETUP_CLIENT_SECRET",
	"EVENTBRITE_CLIENT_ID",
	"EVENTBRITE_CLIENT_SECRET",
	"GITHUB_CLIENT_ID",
	"GITHUB_CLIENT_SECRET",
}

// Cache holds secrets resolved once at startup so request paths can read
// them synchronously.
type Cache struct {
	values map[string]string
}

// LoadCache resolves every known secret through the given Resolver.
// paramPrefix is the SSM path prefix, e.g. "/kin/".
func LoadCache(ctx context.Context, r Resolver, paramPrefix string) (*Cache, error) {
	c := &Cache{values: make(map[string]string, len(knownNames))}
	for _, name := range knownNames {
		v, err := r.GetSecret(ctx, paramPrefix+envVarToParamName(name))
		if err != nil {
			return nil, fmt.Errorf("resolve secret %s: %w", name, err)
		}
		c.values[name] = v
	}
	return c, nil
}

// Get returns the cached secret value, empty when unconfigured.
func (c *Cache) Get(name string) string {
	return c.values[name]
}

// envVarToParamName converts "GOOGLE_CLIENT_SECRET" to
// "google-client-secret", the tail segment of the SSM parameter path.
func envVarToParamName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}
