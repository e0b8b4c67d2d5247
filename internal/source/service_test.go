package source

import (
	"context"
	"errors"
	"testing"

	"github.com/xjonsson/kin-api-server/internal/crypto"
	"github.com/xjonsson/kin-api-server/internal/model"
	"github.com/xjonsson/kin-api-server/internal/providers"
	"github.com/xjonsson/kin-api-server/internal/store"
)

type staticSecrets map[string]string

func (s staticSecrets) Get(name string) string { return s[name] }

func newTestService() *Service {
	st := store.New(store.NewMemoryClient(), crypto.NewMockEncryptor())
	reg := providers.NewRegistry(staticSecrets{})
	return NewService(st, reg, nil, nil)
}

func facebookProfile(accountID string) model.Profile {
	return model.Profile{
		Provider:    "facebook",
		ID:          accountID,
		DisplayName: "Ada Lovelace",
		Emails:      []string{"ada@example.com"},
	}
}

func TestSaveTokenCreatesUser(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	u, err := s.SaveToken(ctx, facebookProfile("123"), "tok", "")
	if err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if u.ID() != "facebook-123" {
		t.Errorf("user id = %q, want facebook-123", u.ID())
	}
	if u.DisplayName() != "Ada Lovelace" {
		t.Errorf("display name = %q", u.DisplayName())
	}
	src := u.GetSource("facebook-123")
	if src == nil {
		t.Fatal("source not attached")
	}
	if src.Status != model.StatusConnected {
		t.Errorf("status = %q, want connected", src.Status)
	}
	if src.Email != "ada@example.com" {
		t.Errorf("email = %q", src.Email)
	}

	// Facebook flags two RSVP buckets selected by default.
	for _, layerID := range []string{"facebook-123:events_attending", "facebook-123:events_tentative"} {
		if !u.IsLayerSelected(layerID) {
			t.Errorf("layer %q not auto-selected", layerID)
		}
	}
	if u.IsLayerSelected("facebook-123:events_declined") {
		t.Error("declined bucket should not be auto-selected")
	}

	// Everything must be persisted, including the alias.
	reloaded, err := s.st.Load(ctx, "facebook-123")
	if err != nil {
		t.Fatalf("Load after SaveToken: %v", err)
	}
	if reloaded.GetSource("facebook-123") == nil {
		t.Error("source not persisted")
	}
	owner, found, err := s.st.LookupAlias(ctx, "facebook-123")
	if err != nil || !found || owner != "facebook-123" {
		t.Errorf("alias = (%q, %v, %v), want self alias", owner, found, err)
	}
}

func TestSaveTokenLogsExistingUserIn(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	if _, err := s.SaveToken(ctx, facebookProfile("123"), "tok-old", ""); err != nil {
		t.Fatalf("first SaveToken: %v", err)
	}
	u, err := s.SaveToken(ctx, facebookProfile("123"), "tok-new", "")
	if err != nil {
		t.Fatalf("second SaveToken: %v", err)
	}
	if u.ID() != "facebook-123" {
		t.Errorf("user id = %q", u.ID())
	}
	if got := u.GetSource("facebook-123").AccessToken; got != "tok-new" {
		t.Errorf("access token = %q, want tok-new", got)
	}
}

func TestSaveSourceRejectsSourceLinkedElsewhere(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	if _, err := s.SaveToken(ctx, facebookProfile("123"), "tok", ""); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	other, err := s.SaveToken(ctx, model.Profile{Provider: "meetup", ID: "9", DisplayName: "Other"}, "tok", "r")
	if err != nil {
		t.Fatalf("SaveToken other: %v", err)
	}

	rc := s.NewRequestContext(other)
	hijack := model.NewSource(facebookProfile("123"), "tok2", "")
	err = s.SaveSource(ctx, rc, hijack)
	var me *model.Error
	if !errors.As(err, &me) || me.Code != model.CodeSourceAlreadyUsed {
		t.Fatalf("err = %v, want source-already-used (code %d)", err, model.CodeSourceAlreadyUsed)
	}
}

func TestDeauthReleasesAlias(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	u, err := s.SaveToken(ctx, facebookProfile("1"), "tok", "")
	if err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	rc := s.NewRequestContext(u)
	eb := model.NewSource(model.Profile{Provider: "eventbrite", ID: "7"}, "tok", "")
	if err := s.SaveSource(ctx, rc, eb); err != nil {
		t.Fatalf("SaveSource: %v", err)
	}

	if err := s.Deauth(ctx, rc, "eventbrite-7"); err != nil {
		t.Fatalf("Deauth: %v", err)
	}
	if u.GetSource("eventbrite-7") != nil {
		t.Error("source still attached after deauth")
	}
	if _, found, _ := s.st.LookupAlias(ctx, "eventbrite-7"); found {
		t.Error("alias still present after deauth")
	}

	err = s.Deauth(ctx, rc, "eventbrite-7")
	var me *model.Error
	if !errors.As(err, &me) || me.Code != model.CodeSourceNotFound {
		t.Errorf("second deauth err = %v, want source-not-found", err)
	}
}

func TestListLayersAppliesUserSelection(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	u, err := s.SaveToken(ctx, facebookProfile("1"), "tok", "")
	if err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	// The user turns a default-selected bucket off and an unselected one on.
	u.ToggleSelectedLayer("facebook-1:events_attending", false)
	u.ToggleSelectedLayer("facebook-1:events_created", true)

	rc := s.NewRequestContext(u)
	layers, err := s.ListLayers(ctx, rc, "facebook-1")
	if err != nil {
		t.Fatalf("ListLayers: %v", err)
	}
	byID := map[string]model.Layer{}
	for _, l := range layers {
		byID[l.ID] = l
	}
	if byID["facebook-1:events_attending"].Selected {
		t.Error("user deselection not applied")
	}
	if !byID["facebook-1:events_created"].Selected {
		t.Error("user selection not applied")
	}
}

func TestListLayersValidatesSource(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	u, err := s.SaveToken(ctx, facebookProfile("1"), "tok", "")
	if err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	rc := s.NewRequestContext(u)

	_, err = s.ListLayers(ctx, rc, "facebook-404")
	var me *model.Error
	if !errors.As(err, &me) || me.Code != model.CodeSourceNotFound {
		t.Errorf("unknown source err = %v", err)
	}

	u.GetSource("facebook-1").Status = model.StatusDisconnected
	_, err = s.ListLayers(ctx, rc, "facebook-1")
	if !errors.As(err, &me) || me.Code != model.CodeDisconnectedSource {
		t.Errorf("disconnected source err = %v", err)
	}
}
