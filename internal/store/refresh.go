package store

import (
	"context"
	"encoding/json"

	"github.com/xjonsson/kin-api-server/internal/model"
)

// RefreshSignal is the coordinator's answer to "may I refresh this source's
// token?".
type RefreshSignal int

const (
	// CanRefresh means the caller won the race and owns the refresh; the
	// source's status is now `refreshing`.
	CanRefresh RefreshSignal = iota
	// AlreadyRefreshing means another worker holds the refresh; back off,
	// reload the user and retry the original call.
	AlreadyRefreshing
)

// ShouldRefresh runs the token-refresh coordination protocol for one of the
// user's sources: read the stored source, and if its status is absent or
// connected, atomically flip it to refreshing. The swap is conditioned on
// the stored value being unchanged, so across all worker processes at most
// one caller gets CanRefresh per refresh cycle.
func (u *User) ShouldRefresh(ctx context.Context, sourceID string) (RefreshSignal, error) {
	key := sourcesKey(u.id)
	fields, err := u.st.client.GetHash(ctx, key)
	if err != nil {
		return AlreadyRefreshing, err
	}
	raw, ok := fields[sourceID]
	if !ok {
		return AlreadyRefreshing, model.NewSourceNotFoundError(sourceID)
	}

	var stored model.Source
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return AlreadyRefreshing, err
	}
	if stored.Status != "" && stored.Status != model.StatusConnected {
		return AlreadyRefreshing, nil
	}

	stored.Status = model.StatusRefreshing
	next, err := json.Marshal(&stored)
	if err != nil {
		return AlreadyRefreshing, err
	}

	swapped, err := u.st.client.CompareAndSwapHashField(ctx, key, sourceID, raw, string(next))
	if err != nil {
		return AlreadyRefreshing, err
	}
	if !swapped {
		// Lost the race: another worker transitioned the status first.
		return AlreadyRefreshing, nil
	}
	return CanRefresh, nil
}
