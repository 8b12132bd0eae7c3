// Package memory provides an in-memory implementation of the persistence
// store used for tests and for running without a configured database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.DetailLoader    = (*Store)(nil)
)

type (
	// Map aliases domain.Map for in-memory persistence operations.
	Map = domain.Map
	// Strategy aliases domain.Strategy.
	Strategy = domain.Strategy
	// StrategyVersion aliases domain.StrategyVersion.
	StrategyVersion = domain.StrategyVersion
	// StrategyImage aliases domain.StrategyImage.
	StrategyImage = domain.StrategyImage
)

type memoryState struct {
	maps       map[string]Map
	strategies map[string]Strategy
	versions   map[string]StrategyVersion
	images     map[string]StrategyImage
}

func newMemoryState() memoryState {
	return memoryState{
		maps:       make(map[string]Map),
		strategies: make(map[string]Strategy),
		versions:   make(map[string]StrategyVersion),
		images:     make(map[string]StrategyImage),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.maps {
		cloned.maps[k] = cloneMap(v)
	}
	for k, v := range s.strategies {
		cloned.strategies[k] = cloneStrategy(v)
	}
	for k, v := range s.versions {
		cloned.versions[k] = cloneVersion(v)
	}
	for k, v := range s.images {
		cloned.images[k] = cloneImage(v)
	}
	return cloned
}

func cloneMap(m Map) Map {
	cp := m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

func cloneStrategy(s Strategy) Strategy {
	cp := s
	cp.CurrentVersionID = clonePtr(s.CurrentVersionID)
	return cp
}

func cloneVersion(v StrategyVersion) StrategyVersion {
	cp := v
	cp.ChangeNotes = clonePtr(v.ChangeNotes)
	return cp
}

func cloneImage(img StrategyImage) StrategyImage {
	cp := img
	cp.StrategyID = clonePtr(img.StrategyID)
	cp.VersionID = clonePtr(img.VersionID)
	cp.AltText = clonePtr(img.AltText)
	return cp
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Store is a transactional in-memory repository. Transactions operate on a
// cloned state that replaces the live state only when fn succeeds.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the clock used for timestamps. Intended for tests.
func (s *Store) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

// LoadStrategyDetail assembles a strategy with its map, current version, and
// images under a single read lock.
func (s *Store) LoadStrategyDetail(ctx context.Context, id string) (domain.StrategyDetail, error) {
	if err := ctx.Err(); err != nil {
		return domain.StrategyDetail{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := view{state: &s.state}
	return v.detail(id)
}

// LoadMapStrategies returns strategy summaries for a map under a single read lock.
func (s *Store) LoadMapStrategies(ctx context.Context, mapID string) ([]domain.StrategySummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.state.maps[mapID]; !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntityMap, ID: mapID}
	}
	v := view{state: &s.state}
	out := []domain.StrategySummary{}
	for _, st := range s.state.strategies {
		if st.MapID != mapID {
			continue
		}
		out = append(out, v.summary(st))
	}
	domain.SortSummaries(out)
	return out, nil
}

type transaction struct {
	state memoryState
	now   time.Time
}

func newID() string { return uuid.NewString() }

func (tx *transaction) Snapshot() domain.TransactionView {
	return view{state: &tx.state}
}

// CreateMap stores a new map. Map names are unique.
func (tx *transaction) CreateMap(m Map) (Map, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	if _, exists := tx.state.maps[m.ID]; exists {
		return Map{}, fmt.Errorf("map %q already exists: %w", m.ID, domain.ErrConflict)
	}
	if tx.nameTaken(m.Name, "") {
		return Map{}, fmt.Errorf("map name %q already taken: %w", m.Name, domain.ErrConflict)
	}
	m.StrategyCount = 0
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	tx.state.maps[m.ID] = cloneMap(m)
	return cloneMap(m), nil
}

// UpdateMap mutates an existing map. The strategy count is backend-maintained
// and cannot be changed by the mutator.
func (tx *transaction) UpdateMap(id string, mutator func(*Map) error) (Map, error) {
	current, ok := tx.state.maps[id]
	if !ok {
		return Map{}, domain.ErrNotFound{Entity: domain.EntityMap, ID: id}
	}
	count, created := current.StrategyCount, current.CreatedAt
	if err := mutator(&current); err != nil {
		return Map{}, err
	}
	if tx.nameTaken(current.Name, id) {
		return Map{}, fmt.Errorf("map name %q already taken: %w", current.Name, domain.ErrConflict)
	}
	current.ID = id
	current.StrategyCount = count
	current.CreatedAt = created
	current.UpdatedAt = tx.now
	tx.state.maps[id] = cloneMap(current)
	return cloneMap(current), nil
}

// DeleteMap removes a map and cascades to its strategies.
func (tx *transaction) DeleteMap(id string) error {
	if _, ok := tx.state.maps[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityMap, ID: id}
	}
	for sid, st := range tx.state.strategies {
		if st.MapID == id {
			tx.cascadeStrategy(sid)
		}
	}
	delete(tx.state.maps, id)
	return nil
}

func (tx *transaction) nameTaken(name, exceptID string) bool {
	for id, m := range tx.state.maps {
		if id != exceptID && strings.EqualFold(m.Name, name) {
			return true
		}
	}
	return false
}

// CreateStrategy stores a new strategy and increments its map's strategy count.
func (tx *transaction) CreateStrategy(st Strategy) (Strategy, error) {
	if st.ID == "" {
		st.ID = newID()
	}
	if _, exists := tx.state.strategies[st.ID]; exists {
		return Strategy{}, fmt.Errorf("strategy %q already exists: %w", st.ID, domain.ErrConflict)
	}
	m, ok := tx.state.maps[st.MapID]
	if !ok {
		return Strategy{}, domain.ErrNotFound{Entity: domain.EntityMap, ID: st.MapID}
	}
	if st.CurrentVersionID != nil {
		return Strategy{}, fmt.Errorf("strategy %q cannot reference a version before it exists", st.ID)
	}
	st.CreatedAt = tx.now
	st.UpdatedAt = tx.now
	tx.state.strategies[st.ID] = cloneStrategy(st)
	m.StrategyCount++
	tx.state.maps[m.ID] = m
	return cloneStrategy(st), nil
}

// UpdateStrategy mutates a strategy. Re-parenting moves the strategy count
// between maps; the current version must belong to the strategy.
func (tx *transaction) UpdateStrategy(id string, mutator func(*Strategy) error) (Strategy, error) {
	current, ok := tx.state.strategies[id]
	if !ok {
		return Strategy{}, domain.ErrNotFound{Entity: domain.EntityStrategy, ID: id}
	}
	before := cloneStrategy(current)
	if err := mutator(&current); err != nil {
		return Strategy{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if current.CurrentVersionID != nil {
		v, ok := tx.state.versions[*current.CurrentVersionID]
		if !ok {
			return Strategy{}, domain.ErrNotFound{Entity: domain.EntityStrategyVersion, ID: *current.CurrentVersionID}
		}
		if v.StrategyID != id {
			return Strategy{}, fmt.Errorf("version %q belongs to strategy %q, not %q", v.ID, v.StrategyID, id)
		}
	}
	if current.MapID != before.MapID {
		next, ok := tx.state.maps[current.MapID]
		if !ok {
			return Strategy{}, domain.ErrNotFound{Entity: domain.EntityMap, ID: current.MapID}
		}
		if prev, ok := tx.state.maps[before.MapID]; ok {
			prev.StrategyCount--
			tx.state.maps[prev.ID] = prev
		}
		next.StrategyCount++
		tx.state.maps[next.ID] = next
	}
	current.UpdatedAt = tx.now
	tx.state.strategies[id] = cloneStrategy(current)
	return cloneStrategy(current), nil
}

// DeleteStrategy removes a strategy together with its versions and images.
func (tx *transaction) DeleteStrategy(id string) error {
	st, ok := tx.state.strategies[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityStrategy, ID: id}
	}
	tx.cascadeStrategy(id)
	if m, ok := tx.state.maps[st.MapID]; ok {
		m.StrategyCount--
		tx.state.maps[m.ID] = m
	}
	return nil
}

func (tx *transaction) cascadeStrategy(id string) {
	for vid, v := range tx.state.versions {
		if v.StrategyID == id {
			delete(tx.state.versions, vid)
		}
	}
	for iid, img := range tx.state.images {
		if img.StrategyID != nil && *img.StrategyID == id {
			delete(tx.state.images, iid)
		}
	}
	delete(tx.state.strategies, id)
}

// CreateVersion stores an immutable version. (strategy, version number) is unique.
func (tx *transaction) CreateVersion(v StrategyVersion) (StrategyVersion, error) {
	if v.ID == "" {
		v.ID = newID()
	}
	if _, ok := tx.state.strategies[v.StrategyID]; !ok {
		return StrategyVersion{}, domain.ErrNotFound{Entity: domain.EntityStrategy, ID: v.StrategyID}
	}
	if v.VersionNumber < 1 {
		return StrategyVersion{}, domain.ValidationError{Field: "version_number", Message: "must be positive"}
	}
	if _, exists := tx.state.versions[v.ID]; exists {
		return StrategyVersion{}, fmt.Errorf("version %q already exists: %w", v.ID, domain.ErrConflict)
	}
	for _, existing := range tx.state.versions {
		if existing.StrategyID == v.StrategyID && existing.VersionNumber == v.VersionNumber {
			return StrategyVersion{}, fmt.Errorf("strategy %q version %d: %w", v.StrategyID, v.VersionNumber, domain.ErrConflict)
		}
	}
	v.CreatedAt = tx.now
	tx.state.versions[v.ID] = cloneVersion(v)
	return cloneVersion(v), nil
}

// CreateImage stores an image row. A versioned image must belong to the same
// strategy as its version.
func (tx *transaction) CreateImage(img StrategyImage) (StrategyImage, error) {
	if img.ID == "" {
		img.ID = newID()
	}
	if _, exists := tx.state.images[img.ID]; exists {
		return StrategyImage{}, fmt.Errorf("image %q already exists: %w", img.ID, domain.ErrConflict)
	}
	if img.StrategyID != nil {
		if _, ok := tx.state.strategies[*img.StrategyID]; !ok {
			return StrategyImage{}, domain.ErrNotFound{Entity: domain.EntityStrategy, ID: *img.StrategyID}
		}
	}
	if img.VersionID != nil {
		v, ok := tx.state.versions[*img.VersionID]
		if !ok {
			return StrategyImage{}, domain.ErrNotFound{Entity: domain.EntityStrategyVersion, ID: *img.VersionID}
		}
		if img.StrategyID == nil || *img.StrategyID != v.StrategyID {
			return StrategyImage{}, fmt.Errorf("image version %q belongs to strategy %q", v.ID, v.StrategyID)
		}
	}
	img.CreatedAt = tx.now
	tx.state.images[img.ID] = cloneImage(img)
	return cloneImage(img), nil
}

// UpdateImage mutates the editable fields (alt text, position) of an image.
func (tx *transaction) UpdateImage(id string, mutator func(*StrategyImage) error) (StrategyImage, error) {
	current, ok := tx.state.images[id]
	if !ok {
		return StrategyImage{}, domain.ErrNotFound{Entity: domain.EntityStrategyImage, ID: id}
	}
	next := cloneImage(current)
	if err := mutator(&next); err != nil {
		return StrategyImage{}, err
	}
	current.AltText = clonePtr(next.AltText)
	current.PositionInContent = next.PositionInContent
	tx.state.images[id] = cloneImage(current)
	return cloneImage(current), nil
}

// DeleteImage removes a single image row.
func (tx *transaction) DeleteImage(id string) error {
	if _, ok := tx.state.images[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityStrategyImage, ID: id}
	}
	delete(tx.state.images, id)
	return nil
}

type view struct {
	state *memoryState
}

func (v view) FindMap(id string) (Map, bool, error) {
	m, ok := v.state.maps[id]
	if !ok {
		return Map{}, false, nil
	}
	return cloneMap(m), true, nil
}

func (v view) ListMaps() ([]Map, error) {
	out := make([]Map, 0, len(v.state.maps))
	for _, m := range v.state.maps {
		out = append(out, cloneMap(m))
	}
	sortMaps(out)
	return out, nil
}

func (v view) SearchMaps(query string) ([]Map, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []Map{}
	for _, m := range v.state.maps {
		if q == "" || strings.Contains(strings.ToLower(m.Name), q) || strings.Contains(strings.ToLower(m.Description), q) {
			out = append(out, cloneMap(m))
		}
	}
	sortMaps(out)
	return out, nil
}

func sortMaps(maps []Map) {
	sort.Slice(maps, func(i, j int) bool {
		return strings.ToLower(maps[i].Name) < strings.ToLower(maps[j].Name)
	})
}

func (v view) FindStrategy(id string) (Strategy, bool, error) {
	st, ok := v.state.strategies[id]
	if !ok {
		return Strategy{}, false, nil
	}
	return cloneStrategy(st), true, nil
}

func (v view) ListStrategies(mapID string) ([]Strategy, error) {
	out := []Strategy{}
	for _, st := range v.state.strategies {
		if mapID == "" || st.MapID == mapID {
			out = append(out, cloneStrategy(st))
		}
	}
	sortStrategies(out)
	return out, nil
}

func (v view) SearchStrategies(query, mapID string) ([]Strategy, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []Strategy{}
	for _, st := range v.state.strategies {
		if mapID != "" && st.MapID != mapID {
			continue
		}
		title, desc := st.Title, st.Description
		if st.CurrentVersionID != nil {
			if cv, ok := v.state.versions[*st.CurrentVersionID]; ok {
				title, desc = cv.Title, cv.Description
			}
		}
		if q == "" || strings.Contains(strings.ToLower(title), q) || strings.Contains(strings.ToLower(desc), q) {
			out = append(out, cloneStrategy(st))
		}
	}
	sortStrategies(out)
	return out, nil
}

func sortStrategies(strategies []Strategy) {
	sort.Slice(strategies, func(i, j int) bool {
		a, b := strategies[i], strategies[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (v view) FindVersion(id string) (StrategyVersion, bool, error) {
	ver, ok := v.state.versions[id]
	if !ok {
		return StrategyVersion{}, false, nil
	}
	return cloneVersion(ver), true, nil
}

func (v view) FindVersionByNumber(strategyID string, number int) (StrategyVersion, bool, error) {
	for _, ver := range v.state.versions {
		if ver.StrategyID == strategyID && ver.VersionNumber == number {
			return cloneVersion(ver), true, nil
		}
	}
	return StrategyVersion{}, false, nil
}

func (v view) ListVersions(strategyID string) ([]StrategyVersion, error) {
	out := []StrategyVersion{}
	for _, ver := range v.state.versions {
		if ver.StrategyID == strategyID {
			out = append(out, cloneVersion(ver))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (v view) FindImage(id string) (StrategyImage, bool, error) {
	img, ok := v.state.images[id]
	if !ok {
		return StrategyImage{}, false, nil
	}
	return cloneImage(img), true, nil
}

func (v view) ListImages(filter domain.ImageFilter) ([]StrategyImage, error) {
	out := []StrategyImage{}
	for _, img := range v.state.images {
		if img.StrategyID == nil || *img.StrategyID != filter.StrategyID {
			continue
		}
		switch {
		case filter.VersionID != nil:
			if img.VersionID == nil || *img.VersionID != *filter.VersionID {
				continue
			}
		case filter.Unversioned:
			if img.VersionID != nil {
				continue
			}
		}
		out = append(out, cloneImage(img))
	}
	domain.SortImages(out)
	return out, nil
}

func (v view) CountImageReferences(storagePath string) (int, error) {
	n := 0
	for _, img := range v.state.images {
		if img.StoragePath == storagePath {
			n++
		}
	}
	return n, nil
}

func (v view) detail(id string) (domain.StrategyDetail, error) {
	st, ok := v.state.strategies[id]
	if !ok {
		return domain.StrategyDetail{}, domain.ErrNotFound{Entity: domain.EntityStrategy, ID: id}
	}
	out := domain.StrategyDetail{Strategy: cloneStrategy(st)}
	if m, ok := v.state.maps[st.MapID]; ok {
		mc := cloneMap(m)
		out.Map = &mc
	}
	filter := domain.ImageFilter{StrategyID: id, Unversioned: true}
	if st.CurrentVersionID != nil {
		if cv, ok := v.state.versions[*st.CurrentVersionID]; ok {
			cvc := cloneVersion(cv)
			out.CurrentVersion = &cvc
			filter = domain.ImageFilter{StrategyID: id, VersionID: &cvc.ID}
		}
	}
	out.Images, _ = v.ListImages(filter)
	return out, nil
}

func (v view) summary(st Strategy) domain.StrategySummary {
	sum := domain.StrategySummary{Strategy: cloneStrategy(st), Title: st.Title, Description: st.Description}
	filter := domain.ImageFilter{StrategyID: st.ID, Unversioned: true}
	if st.CurrentVersionID != nil {
		if cv, ok := v.state.versions[*st.CurrentVersionID]; ok {
			sum.Title, sum.Description, sum.VersionNumber = cv.Title, cv.Description, cv.VersionNumber
			filter = domain.ImageFilter{StrategyID: st.ID, VersionID: &cv.ID}
		}
	}
	images, _ := v.ListImages(filter)
	sum.ImageCount = len(images)
	return sum
}
