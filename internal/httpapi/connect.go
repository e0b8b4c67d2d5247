package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xjonsson/kin-api-server/internal/auth"
	"github.com/xjonsson/kin-api-server/internal/model"
)

type connectRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Profile      struct {
		ID          string   `json:"id"`
		DisplayName string   `json:"display_name"`
		Emails      []string `json:"emails"`
	} `json:"profile"`
}

// connectRedirect hands the client the provider authorization URL to send the
// user to. The state parameter is opaque to us and echoed back by the
// provider.
func (a *API) connectRedirect(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	providerName := chi.URLParam(r, "provider")

	p, ok := a.reg.Get(providerName)
	if !ok {
		writeError(w, a.log, correlationID, model.NewSourceNotFoundError(providerName))
		return
	}
	cfg, err := auth.OAuthConfig(p, a.secrets, a.cfg.BaseURL)
	if err != nil {
		writeError(w, a.log, correlationID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"redirect": cfg.AuthCodeURL(uuid.NewString()),
	})
}

// connectToken finishes a connection with tokens obtained from the provider.
// A logged-in caller links the account as a new source; an anonymous caller
// is logged into the account owning the source, creating it on first
// connect.
func (a *API) connectToken(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	providerName := chi.URLParam(r, "provider")

	if _, ok := a.reg.Get(providerName); !ok {
		writeError(w, a.log, correlationID, model.NewSourceNotFoundError(providerName))
		return
	}

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, a.log, correlationID, model.NewInvalidFormatError(err.Error(), "body", "json"))
		return
	}
	if req.AccessToken == "" || req.Profile.ID == "" {
		writeError(w, a.log, correlationID, model.NewInvalidFormatError("missing", "access_token", "string"))
		return
	}

	profile := model.Profile{
		Provider:    providerName,
		ID:          req.Profile.ID,
		DisplayName: req.Profile.DisplayName,
		Emails:      req.Profile.Emails,
	}

	if userID, err := a.sessions.UserID(r); err == nil {
		a.linkSource(w, r, correlationID, userID, profile, req)
		return
	}

	u, err := a.svc.SaveToken(r.Context(), profile, req.AccessToken, req.RefreshToken)
	if err != nil {
		writeError(w, a.log, correlationID, err)
		return
	}
	token, err := a.sessions.CreateToken(u.ID())
	if err != nil {
		writeError(w, a.log, correlationID, err)
		return
	}
	http.SetCookie(w, auth.SessionCookie(token))
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"user":     formatUser(u),
		"redirect": a.cfg.StaticURL,
	})
}

// linkSource attaches the connected account to an already logged-in user.
func (a *API) linkSource(w http.ResponseWriter, r *http.Request, correlationID, userID string, profile model.Profile, req connectRequest) {
	u, err := a.st.Load(r.Context(), userID)
	if err != nil {
		writeError(w, a.log, correlationID, err)
		return
	}
	rc := a.svc.NewRequestContext(u)
	rc.ID = correlationID

	src := model.NewSource(profile, req.AccessToken, req.RefreshToken)
	if err := a.svc.SaveSource(r.Context(), rc, src); err != nil {
		writeError(w, a.log, rc.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source": formatSource(rc.User().GetSource(src.ID)),
	})
}
