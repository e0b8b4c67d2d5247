package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/xjonsson/kin-api-server/internal/model"
	"github.com/xjonsson/kin-api-server/internal/store"
)

func formatUser(u *store.User) map[string]any {
	return map[string]any{
		"id":                  u.ID(),
		"display_name":        u.DisplayName(),
		"timezone":            u.Timezone(),
		"first_day":           u.FirstDay(),
		"default_view":        u.DefaultView(),
		"default_calendar_id": u.DefaultCalendarID(),
		"plan":                u.Plan(),
		"plan_expiration":     u.PlanExpiration(),
	}
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	writeJSON(w, http.StatusOK, formatUser(rc.User()))
}

type userPatch struct {
	DisplayName       *string `json:"display_name"`
	Timezone          *string `json:"timezone"`
	FirstDay          *int    `json:"first_day"`
	DefaultView       *string `json:"default_view"`
	DefaultCalendarID *string `json:"default_calendar_id"`
}

// patchUser applies the valid fields of a preference patch and ignores the
// rest, mirroring the lenient contract clients rely on. The middleware
// persists the result.
func (a *API) patchUser(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	u := rc.User()

	var patch userPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, a.log, rc.ID, model.NewInvalidFormatError(err.Error(), "body", "json"))
		return
	}
	if patch.DisplayName != nil && *patch.DisplayName != "" {
		u.SetDisplayName(*patch.DisplayName)
	}
	if patch.Timezone != nil {
		if err := u.SetTimezone(*patch.Timezone); err != nil {
			a.log.Debug("ignored invalid timezone", "correlation_id", rc.ID, "timezone", *patch.Timezone)
		}
	}
	if patch.FirstDay != nil {
		if err := u.SetFirstDay(*patch.FirstDay); err != nil {
			a.log.Debug("ignored invalid first day", "correlation_id", rc.ID, "first_day", *patch.FirstDay)
		}
	}
	if patch.DefaultView != nil {
		if err := u.SetDefaultView(*patch.DefaultView); err != nil {
			a.log.Debug("ignored invalid default view", "correlation_id", rc.ID, "default_view", *patch.DefaultView)
		}
	}
	if patch.DefaultCalendarID != nil && *patch.DefaultCalendarID != "" {
		u.SetDefaultCalendarID(*patch.DefaultCalendarID)
	}
	writeJSON(w, http.StatusOK, formatUser(u))
}
