package store

import (
	"context"
	"strconv"
	"time"

	"github.com/xjonsson/kin-api-server/internal/model"
)

var acceptedDefaultViews = []string{"month", "agendaWeek"}

const (
	defaultDisplayName    = "John Doe"
	defaultView           = "month"
	defaultPlanExpiration = -1
)

// User is the request-scoped aggregate of profile fields, linked sources
// and layer selections. Each request loads its own copy; mutations mark the
// affected sub-structure dirty and Save writes only what changed.
type User struct {
	st *Store
	id string

	displayName       string
	timezone          string
	firstDay          int
	defaultView       string
	defaultCalendarID string
	plan              string
	planExpiration    int64
	createdAt         int64
	updatedAt         int64
	newsUpdatedAt     int64

	sources        map[string]*model.Source
	selectedLayers map[string]bool

	dirty          bool
	miscDirty      bool
	addedSources   map[string]struct{}
	deletedSources map[string]struct{}
	touchedLayers  map[string]struct{}
}

func newUser(st *Store, id string) *User {
	return &User{
		st:                st,
		id:                id,
		displayName:       defaultDisplayName,
		defaultView:       defaultView,
		planExpiration:    defaultPlanExpiration,
		sources:           make(map[string]*model.Source),
		selectedLayers:    make(map[string]bool),
		addedSources:      make(map[string]struct{}),
		deletedSources:    make(map[string]struct{}),
		touchedLayers:     make(map[string]struct{}),
	}
}

// NewUser constructs a fresh, unsaved user aggregate. The first Save sets
// created_at.
func NewUser(st *Store, id string) *User {
	u := newUser(st, id)
	u.dirty = true
	u.miscDirty = true
	return u
}

func (u *User) ID() string               { return u.id }
func (u *User) DisplayName() string      { return u.displayName }
func (u *User) Timezone() string         { return u.timezone }
func (u *User) FirstDay() int            { return u.firstDay }
func (u *User) DefaultView() string      { return u.defaultView }
func (u *User) DefaultCalendarID() string { return u.defaultCalendarID }
func (u *User) Plan() string             { return u.plan }
func (u *User) PlanExpiration() int64    { return u.planExpiration }
func (u *User) CreatedAt() int64         { return u.createdAt }
func (u *User) UpdatedAt() int64         { return u.updatedAt }

// Dirty reports whether any mutation happened since load or the last save.
func (u *User) Dirty() bool { return u.dirty }

func (u *User) SetDisplayName(displayName string) {
	if displayName == u.displayName {
		return
	}
	u.displayName = displayName
	u.markMiscDirty()
}

// SetTimezone validates against the tz database before accepting.
func (u *User) SetTimezone(timezone string) error {
	if timezone == u.timezone {
		return nil
	}
	if _, err := time.LoadLocation(timezone); err != nil || timezone == "" {
		return model.NewInvalidFormatError(timezone, "timezone", "not in tz database")
	}
	u.timezone = timezone
	u.markMiscDirty()
	return nil
}

func (u *User) SetFirstDay(firstDay int) error {
	if firstDay == u.firstDay {
		return nil
	}
	if firstDay < 0 || firstDay > 6 {
		return model.NewInvalidFormatError(strconv.Itoa(firstDay), "first_day", "0 <= x <= 6")
	}
	u.firstDay = firstDay
	u.markMiscDirty()
	return nil
}

func (u *User) SetDefaultView(view string) error {
	if view == u.defaultView {
		return nil
	}
	ok := false
	for _, accepted := range acceptedDefaultViews {
		if view == accepted {
			ok = true
			break
		}
	}
	if !ok {
		return model.NewInvalidFormatError(view, "default_view", "not in ['month', 'agendaWeek']")
	}
	u.defaultView = view
	u.markMiscDirty()
	return nil
}

func (u *User) SetDefaultCalendarID(id string) {
	if id == u.defaultCalendarID {
		return
	}
	u.defaultCalendarID = id
	u.markMiscDirty()
}

func (u *User) SetPlan(plan string) {
	if plan == u.plan {
		return
	}
	u.plan = plan
	u.markMiscDirty()
}

func (u *User) SetPlanExpiration(exp int64) {
	if exp == u.planExpiration {
		return
	}
	u.planExpiration = exp
	u.markMiscDirty()
}

func (u *User) markMiscDirty() {
	u.miscDirty = true
	u.dirty = true
}

// Sources returns the live source map. The engine mutates entries in place
// during refresh and disconnection.
func (u *User) Sources() map[string]*model.Source { return u.sources }

// GetSource returns the source with the given id, nil when not attached.
func (u *User) GetSource(sourceID string) *model.Source { return u.sources[sourceID] }

// IsLayerSelected reports the user's stored selection for a layer,
// defaulting to unselected.
func (u *User) IsLayerSelected(layerID string) bool { return u.selectedLayers[layerID] }

// ToggleSelectedLayer records the user's selection for a layer. The write
// is deferred to the next Save.
func (u *User) ToggleSelectedLayer(layerID string, selected bool) {
	if current, ok := u.selectedLayers[layerID]; ok && current == selected {
		return
	}
	u.selectedLayers[layerID] = selected
	u.touchedLayers[layerID] = struct{}{}
	u.dirty = true
}

// AddSource attaches a source to the user. With withAlias the source's
// global identity is first resolved: a source already aliased to another
// user fails with SourceAlreadyUsed and nothing is mutated.
func (u *User) AddSource(ctx context.Context, src *model.Source, withAlias bool) error {
	if !withAlias {
		u.addSource(src)
		return nil
	}

	owner, found, err := u.st.LookupAlias(ctx, src.ID)
	if err != nil {
		return err
	}
	if found && owner != u.id {
		return model.NewSourceAlreadyUsedError(src.ID)
	}
	u.addSource(src)
	return u.st.CreateAlias(ctx, src.ID, u.id)
}

func (u *User) addSource(src *model.Source) {
	u.sources[src.ID] = src
	u.addedSources[src.ID] = struct{}{}
	u.dirty = true
}

// DeleteSource detaches a source, releasing its alias first. The alias
// delete is awaited: a failed release leaves the source attached.
func (u *User) DeleteSource(ctx context.Context, src *model.Source) error {
	if src.ID == u.id {
		// The login identity has no alias of its own.
		u.deleteSource(src)
		return nil
	}

	if _, ok := u.sources[src.ID]; !ok {
		return model.NewSourceNotFoundError(src.ID)
	}
	if err := u.st.DeleteAlias(ctx, src.ID); err != nil {
		return err
	}
	u.deleteSource(src)
	return nil
}

func (u *User) deleteSource(src *model.Source) {
	u.deletedSources[src.ID] = struct{}{}
	delete(u.sources, src.ID)
	u.dirty = true
}

// Save writes only the dirty sub-structures: misc scalars, touched layer
// selections, added sources, deleted sources. Writes are independent; a
// failure in one does not roll back the others.
func (u *User) Save(ctx context.Context) error {
	if !u.dirty {
		return nil
	}

	now := u.st.now()
	u.updatedAt = now
	if u.createdAt == 0 {
		u.createdAt = now
		u.miscDirty = true
	}

	if u.miscDirty {
		if err := u.st.client.SetHashFields(ctx, miscKey(u.id), u.encodeMisc()); err != nil {
			return err
		}
	}

	if len(u.touchedLayers) > 0 {
		fields := make(map[string]string, len(u.touchedLayers))
		for layerID := range u.touchedLayers {
			fields[layerID] = strconv.FormatBool(u.selectedLayers[layerID])
		}
		if err := u.st.client.SetHashFields(ctx, selectedLayersKey(u.id), fields); err != nil {
			return err
		}
	}

	if len(u.addedSources) > 0 {
		fields := make(map[string]string, len(u.addedSources))
		for sourceID := range u.addedSources {
			src, ok := u.sources[sourceID]
			if !ok {
				continue
			}
			raw, err := u.st.encodeSource(ctx, src)
			if err != nil {
				return err
			}
			fields[sourceID] = raw
		}
		if err := u.st.client.SetHashFields(ctx, sourcesKey(u.id), fields); err != nil {
			return err
		}
	}

	if len(u.deletedSources) > 0 {
		ids := make([]string, 0, len(u.deletedSources))
		for sourceID := range u.deletedSources {
			ids = append(ids, sourceID)
		}
		if err := u.st.client.DeleteHashFields(ctx, sourcesKey(u.id), ids...); err != nil {
			return err
		}
	}

	u.dirty = false
	u.miscDirty = false
	u.addedSources = make(map[string]struct{})
	u.deletedSources = make(map[string]struct{})
	u.touchedLayers = make(map[string]struct{})
	return nil
}

// Reload returns a fresh copy of the user from the store, picking up
// writes made by other workers (a completed token refresh in particular).
func (u *User) Reload(ctx context.Context) (*User, error) {
	return u.st.Load(ctx, u.id)
}

func (u *User) encodeMisc() map[string]string {
	return map[string]string{
		"display_name":        u.displayName,
		"timezone":            u.timezone,
		"first_day":           strconv.Itoa(u.firstDay),
		"default_view":        u.defaultView,
		"default_calendar_id": u.defaultCalendarID,
		"plan":                u.plan,
		"plan_expiration":     strconv.FormatInt(u.planExpiration, 10),
		"updated_at":          strconv.FormatInt(u.updatedAt, 10),
		"created_at":          strconv.FormatInt(u.createdAt, 10),
		"news_updated_at":     strconv.FormatInt(u.newsUpdatedAt, 10),
	}
}

// decodeMisc populates defaults for any missing optional field; numbers are
// stored as strings and parsed here.
func (u *User) decodeMisc(misc map[string]string) {
	if v, ok := misc["display_name"]; ok {
		u.displayName = v
	}
	if v, ok := misc["timezone"]; ok {
		u.timezone = v
	}
	if v, ok := misc["default_view"]; ok && v != "" {
		u.defaultView = v
	}
	if v, ok := misc["default_calendar_id"]; ok {
		u.defaultCalendarID = v
	}
	if v, ok := misc["plan"]; ok {
		u.plan = v
	}
	u.firstDay = int(parseInt(misc["first_day"], 0))
	u.planExpiration = parseInt(misc["plan_expiration"], defaultPlanExpiration)
	u.createdAt = parseInt(misc["created_at"], 0)
	u.updatedAt = parseInt(misc["updated_at"], 0)
	u.newsUpdatedAt = parseInt(misc["news_updated_at"], 0)
}

func parseInt(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
