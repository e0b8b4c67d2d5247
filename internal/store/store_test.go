package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xjonsson/kin-api-server/internal/crypto"
	"github.com/xjonsson/kin-api-server/internal/model"
)

// recordingClient wraps a Client and records which keys get written, so
// tests can assert that Save touches only the dirty sub-structures.
type recordingClient struct {
	Client
	setKeys     []string
	deletedKeys []string
}

func (c *recordingClient) SetHashFields(ctx context.Context, key string, fields map[string]string) error {
	c.setKeys = append(c.setKeys, key)
	return c.Client.SetHashFields(ctx, key, fields)
}

func (c *recordingClient) DeleteHashFields(ctx context.Context, key string, fields ...string) error {
	c.deletedKeys = append(c.deletedKeys, key)
	return c.Client.DeleteHashFields(ctx, key, fields...)
}

func newTestStore() (*Store, *recordingClient) {
	rec := &recordingClient{Client: NewMemoryClient()}
	return New(rec, crypto.NewMockEncryptor()), rec
}

func testSource(id string) *model.Source {
	return &model.Source{
		ID:          id,
		AccessToken: "access-" + id,
		Status:      model.StatusConnected,
	}
}

func errCode(t *testing.T, err error) int {
	t.Helper()
	var me *model.Error
	if !errors.As(err, &me) {
		t.Fatalf("error %v is not a model.Error", err)
	}
	return me.Code
}

func TestLoadUnknownUser(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	_, err := st.Load(ctx, "google-unknown")
	if code := errCode(t, err); code != model.CodeUnauthenticated {
		t.Errorf("code = %d, want %d", code, model.CodeUnauthenticated)
	}
}

func TestSaveWritesOnlyDirtyStructures(t *testing.T) {
	ctx := context.Background()
	st, rec := newTestStore()

	u := NewUser(st, "google-1")
	if err := u.AddSource(ctx, testSource("google-1"), true); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec.setKeys = nil
	u.ToggleSelectedLayer("google-1:primary", true)
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(rec.setKeys) != 1 || rec.setKeys[0] != "google-1:selected_layers" {
		t.Errorf("written keys = %v, want only the selected_layers hash", rec.setKeys)
	}

	// No mutation, no write.
	rec.setKeys = nil
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(rec.setKeys) != 0 {
		t.Errorf("clean save wrote %v", rec.setKeys)
	}
}

func TestCreatedAtSetOnFirstSaveOnly(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()
	now := int64(1000)
	st.now = func() int64 { return now }

	u := NewUser(st, "google-1")
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if u.CreatedAt() != 1000 {
		t.Fatalf("created_at = %d, want 1000", u.CreatedAt())
	}

	now = 2000
	u.SetDisplayName("Ada")
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := st.Load(ctx, "google-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.CreatedAt() != 1000 {
		t.Errorf("created_at = %d, want 1000", loaded.CreatedAt())
	}
	if loaded.UpdatedAt() != 2000 {
		t.Errorf("updated_at = %d, want 2000", loaded.UpdatedAt())
	}
}

func TestAddSourceAliasCollision(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	owner := NewUser(st, "google-1")
	if err := owner.AddSource(ctx, testSource("trello-9"), true); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	thief := NewUser(st, "facebook-2")
	err := thief.AddSource(ctx, testSource("trello-9"), true)
	if code := errCode(t, err); code != model.CodeSourceAlreadyUsed {
		t.Fatalf("code = %d, want %d", code, model.CodeSourceAlreadyUsed)
	}
	if thief.GetSource("trello-9") != nil {
		t.Error("source attached despite the collision")
	}

	// The owner re-linking its own account is fine.
	if err := owner.AddSource(ctx, testSource("trello-9"), true); err != nil {
		t.Errorf("re-link by owner: %v", err)
	}
}

func TestDeleteSourceReleasesAlias(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	u := NewUser(st, "google-1")
	src := testSource("trello-9")
	if err := u.AddSource(ctx, src, true); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := u.DeleteSource(ctx, src); err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, found, _ := st.LookupAlias(ctx, "trello-9"); found {
		t.Error("alias still present after delete")
	}
	loaded, err := st.Load(ctx, "google-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.GetSource("trello-9") != nil {
		t.Error("source still stored after delete")
	}

	err = u.DeleteSource(ctx, src)
	if code := errCode(t, err); code != model.CodeSourceNotFound {
		t.Errorf("second delete code = %d, want %d", code, model.CodeSourceNotFound)
	}
}

func TestRefreshTokenEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryClient()
	st := New(mem, crypto.NewMockEncryptor())

	u := NewUser(st, "google-1")
	src := testSource("google-1")
	src.RefreshToken = "very-secret"
	if err := u.AddSource(ctx, src, true); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := mem.GetHash(ctx, "google-1:sources")
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	if strings.Contains(raw["google-1"], `"very-secret"`) {
		t.Errorf("refresh token stored in plaintext: %s", raw["google-1"])
	}
	if !strings.Contains(raw["google-1"], "mock:very-secret") {
		t.Errorf("refresh token not run through the encryptor: %s", raw["google-1"])
	}

	loaded, err := st.Load(ctx, "google-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.GetSource("google-1").RefreshToken; got != "very-secret" {
		t.Errorf("loaded refresh token = %q", got)
	}
}

func TestShouldRefreshSingleWinner(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	u := NewUser(st, "google-1")
	if err := u.AddSource(ctx, testSource("google-1"), true); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Two workers holding their own copies of the user.
	a, err := st.Load(ctx, "google-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := st.Load(ctx, "google-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sig, err := a.ShouldRefresh(ctx, "google-1")
	if err != nil || sig != CanRefresh {
		t.Fatalf("first caller: sig=%v err=%v, want CanRefresh", sig, err)
	}
	sig, err = b.ShouldRefresh(ctx, "google-1")
	if err != nil || sig != AlreadyRefreshing {
		t.Fatalf("second caller: sig=%v err=%v, want AlreadyRefreshing", sig, err)
	}
}

func TestShouldRefreshUnknownSource(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	u := NewUser(st, "google-1")
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, err := u.ShouldRefresh(ctx, "google-1")
	if code := errCode(t, err); code != model.CodeSourceNotFound {
		t.Errorf("code = %d, want %d", code, model.CodeSourceNotFound)
	}
}

func TestPreferenceValidation(t *testing.T) {
	st, _ := newTestStore()
	u := NewUser(st, "google-1")

	if err := u.SetTimezone("Not/AZone"); err == nil {
		t.Error("bogus timezone accepted")
	}
	if err := u.SetFirstDay(7); err == nil {
		t.Error("first_day 7 accepted")
	}
	if err := u.SetDefaultView("day"); err == nil {
		t.Error("default_view day accepted")
	}

	if err := u.SetTimezone("Europe/Paris"); err != nil {
		t.Errorf("SetTimezone: %v", err)
	}
	if err := u.SetFirstDay(6); err != nil {
		t.Errorf("SetFirstDay: %v", err)
	}
	if err := u.SetDefaultView("agendaWeek"); err != nil {
		t.Errorf("SetDefaultView: %v", err)
	}
}
