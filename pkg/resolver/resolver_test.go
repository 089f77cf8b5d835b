package resolver

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tabletop-exchange/bgg-proxy/internal/testutil"
	"github.com/tabletop-exchange/bgg-proxy/pkg/bgg"
	"github.com/tabletop-exchange/bgg-proxy/pkg/cache"
	"github.com/tabletop-exchange/bgg-proxy/pkg/client"
)

// fakeUpstream serves registered <item> elements and records every call.
type fakeUpstream struct {
	mu     sync.Mutex
	things map[string]string
	search string

	batchErr   error
	detailsErr error
	searchErr  error
	rawBatch   string

	batchCalls   [][]string
	detailsCalls []string
	searchCalls  int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{things: make(map[string]string)}
}

func (f *fakeUpstream) add(id, itemXML string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.things[id] = itemXML
}

func (f *fakeUpstream) items(ids []string) []byte {
	var sb strings.Builder
	sb.WriteString(`<items>`)
	for _, id := range ids {
		sb.WriteString(f.things[id])
	}
	sb.WriteString(`</items>`)
	return []byte(sb.String())
}

func (f *fakeUpstream) GetBatchMetadata(_ context.Context, ids []string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls = append(f.batchCalls, append([]string(nil), ids...))
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	if f.rawBatch != "" {
		return []byte(f.rawBatch), nil
	}
	return f.items(ids), nil
}

func (f *fakeUpstream) GetGameDetails(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailsCalls = append(f.detailsCalls, id)
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	return f.items([]string{id}), nil
}

func (f *fakeUpstream) SearchGames(_ context.Context, _ string, _ bgg.GameType, _ bool) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []byte(f.search), nil
}

func (f *fakeUpstream) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batchCalls) + len(f.detailsCalls) + f.searchCalls
}

// setupTestService creates a service over a fresh cache and fake upstream.
func setupTestService(t *testing.T, cfg Config) (*Service, *cache.Manager, *fakeUpstream) {
	t.Helper()

	manager, err := cache.NewManager(cache.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	upstream := newFakeUpstream()
	return New(manager, upstream, WithConfig(cfg), WithLogger(zerolog.Nop())), manager, upstream
}

func entryIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestResolveBatch_MixedHitMissUnknown(t *testing.T) {
	svc, manager, upstream := setupTestService(t, DefaultConfig())
	ctx := context.Background()

	manager.PutMetadata(&bgg.GameMetadata{ID: "13", Name: "Catan", Type: bgg.TypeBoardGame})
	upstream.add("161936", testutil.ThingXML("161936", "boardgame", "Pandemic Legacy: Season 1", 2015))

	result, err := svc.ResolveBatch(ctx, []string{"13", "161936", "999999999"})
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}

	if got := entryIDs(result.Entries); !reflect.DeepEqual(got, []string{"13", "161936", "999999999"}) {
		t.Errorf("entry order = %v", got)
	}

	if len(upstream.batchCalls) != 1 {
		t.Fatalf("upstream calls = %d, want 1", len(upstream.batchCalls))
	}
	if got := upstream.batchCalls[0]; !reflect.DeepEqual(got, []string{"161936", "999999999"}) {
		t.Errorf("upstream ids = %v, want only the misses", got)
	}

	cached := result.Entries[0]
	if cached.Source != SourceCache || cached.Game == nil || cached.Game.Name != "Catan" {
		t.Errorf("entry 13 = %+v, want cached Catan", cached)
	}

	fetched := result.Entries[1]
	if fetched.Source != SourceUpstream || fetched.Game == nil || fetched.Game.YearPublished != 2015 {
		t.Errorf("entry 161936 = %+v, want fetched record", fetched)
	}

	missing := result.Entries[2]
	if !errors.Is(missing.Err, ErrNotFound) || missing.Game != nil {
		t.Errorf("entry 999999999 = %+v, want ErrNotFound", missing)
	}

	want := Summary{Total: 3, Successful: 2, Failed: 1, FromCache: 1, Fetched: 1}
	if result.Summary != want {
		t.Errorf("Summary = %+v, want %+v", result.Summary, want)
	}

	// The fetched record was written back
	if _, ok := manager.GetMetadata("161936"); !ok {
		t.Error("fetched record not stored in cache")
	}
}

func TestResolveBatch_CacheIdempotence(t *testing.T) {
	svc, _, upstream := setupTestService(t, DefaultConfig())
	ctx := context.Background()

	upstream.add("13", testutil.ThingXML("13", "boardgame", "Catan", 1995))
	upstream.add("822", testutil.ThingXML("822", "boardgame", "Carcassonne", 2000))

	first, err := svc.ResolveBatch(ctx, []string{"13", "822"})
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}
	second, err := svc.ResolveBatch(ctx, []string{"822", "13"})
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}

	if len(upstream.batchCalls) != 1 {
		t.Errorf("upstream calls = %d, want 1", len(upstream.batchCalls))
	}
	if second.Summary.FromCache != 2 || second.Summary.Fetched != 0 {
		t.Errorf("second Summary = %+v, want all from cache", second.Summary)
	}
	if first.Entries[0].Game.Name != second.Entries[1].Game.Name {
		t.Error("cached record differs from fetched record")
	}
}

func TestResolveBatch_DuplicateIDs(t *testing.T) {
	svc, _, upstream := setupTestService(t, DefaultConfig())

	upstream.add("1", testutil.ThingXML("1", "boardgame", "Die Macher", 1986))
	upstream.add("2", testutil.ThingXML("2", "boardgame", "Dragonmaster", 1981))

	result, err := svc.ResolveBatch(context.Background(), []string{"2", "1", "2"})
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}

	if got := entryIDs(result.Entries); !reflect.DeepEqual(got, []string{"2", "1", "2"}) {
		t.Errorf("entry order = %v", got)
	}
	if got := upstream.batchCalls[0]; !reflect.DeepEqual(got, []string{"2", "1"}) {
		t.Errorf("upstream ids = %v, want deduplicated first-seen order", got)
	}
	if result.Entries[2].Game == nil || result.Entries[2].Game.Name != "Dragonmaster" {
		t.Errorf("duplicate slot = %+v", result.Entries[2])
	}
}

func TestResolveBatch_UpstreamFailureKeepsHits(t *testing.T) {
	svc, manager, upstream := setupTestService(t, DefaultConfig())

	manager.PutMetadata(&bgg.GameMetadata{ID: "13", Name: "Catan"})
	upstream.batchErr = &client.UpstreamError{Kind: client.KindNetwork, Message: "request failed"}

	result, err := svc.ResolveBatch(context.Background(), []string{"14", "13", "15"})
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}

	if result.Entries[1].Game == nil {
		t.Error("cache hit lost on upstream failure")
	}
	for _, i := range []int{0, 2} {
		if got := Classify(result.Entries[i].Err); got != CategoryNetwork {
			t.Errorf("entry %d category = %q, want network", i, got)
		}
	}
	if result.Summary.Failed != 2 || result.Summary.Successful != 1 {
		t.Errorf("Summary = %+v", result.Summary)
	}
	if manager.Statistics().Metadata.Entries != 1 {
		t.Error("failed fetch wrote to the cache")
	}
}

func TestResolveBatch_AllCachedSkipsUpstream(t *testing.T) {
	svc, manager, upstream := setupTestService(t, DefaultConfig())

	manager.PutMetadataBatch([]*bgg.GameMetadata{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}})

	if _, err := svc.ResolveBatch(context.Background(), []string{"1", "2"}); err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}
	if calls := upstream.totalCalls(); calls != 0 {
		t.Errorf("upstream calls = %d, want 0", calls)
	}
}

func TestResolveBatch_InvalidInput(t *testing.T) {
	svc, _, upstream := setupTestService(t, DefaultConfig())

	tests := []struct {
		name string
		ids  []string
	}{
		{name: "nil", ids: nil},
		{name: "empty", ids: []string{}},
		{name: "blank id", ids: []string{"13", "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ResolveBatch(context.Background(), tt.ids)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ResolveBatch(%v) error = %v, want ErrInvalidInput", tt.ids, err)
			}
		})
	}
	if calls := upstream.totalCalls(); calls != 0 {
		t.Errorf("upstream calls = %d, want 0", calls)
	}
}

func TestResolveBatch_Truncates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBatchSize = 2
	svc, _, upstream := setupTestService(t, cfg)

	result, err := svc.ResolveBatch(context.Background(), []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}
	if len(result.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(result.Entries))
	}
	if got := upstream.batchCalls[0]; len(got) != 2 {
		t.Errorf("upstream ids = %v, want 2", got)
	}
}

func TestResolveBatch_MalformedUpstream(t *testing.T) {
	svc, _, upstream := setupTestService(t, DefaultConfig())
	upstream.rawBatch = `<html><body>Service Unavailable</body></html>`

	result, err := svc.ResolveBatch(context.Background(), []string{"13"})
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}
	if !errors.Is(result.Entries[0].Err, ErrNotFound) {
		t.Errorf("entry error = %v, want ErrNotFound", result.Entries[0].Err)
	}
}

func TestResolveBatch_ExpansionClassification(t *testing.T) {
	svc, manager, upstream := setupTestService(t, DefaultConfig())

	upstream.add("926", `<item type="boardgame" id="926"><name type="primary" value="Catan: Seafarers"/>`+
		`<link type="boardgameexpansion" id="13" value="Catan" inbound="true"/></item>`)
	upstream.add("11", testutil.ThingXML("11", "boardgameexpansion", "Bohnanza: Expansion", 1997))
	upstream.add("13", testutil.ThingXML("13", "boardgame", "Catan", 1995))
	// a cached record stored before classification
	manager.PutMetadata(&bgg.GameMetadata{ID: "5", Name: "Acquire", HasInboundExpansionLink: true})

	result, err := svc.ResolveBatch(context.Background(), []string{"926", "11", "13", "5"})
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}

	want := map[string]bool{"926": true, "11": true, "13": false, "5": true}
	for _, e := range result.Entries {
		if e.Game == nil {
			t.Fatalf("entry %s failed: %v", e.ID, e.Err)
		}
		if e.Game.IsExpansion != want[e.ID] {
			t.Errorf("%s IsExpansion = %v, want %v", e.ID, e.Game.IsExpansion, want[e.ID])
		}
		if want[e.ID] && e.Game.Type != bgg.TypeExpansion {
			t.Errorf("%s Type = %q, want expansion", e.ID, e.Game.Type)
		}
	}
}

func TestResolveGame(t *testing.T) {
	svc, _, upstream := setupTestService(t, DefaultConfig())
	upstream.add("13", testutil.ThingXML("13", "boardgame", "Catan", 1995))

	game, err := svc.ResolveGame(context.Background(), " 13 ")
	if err != nil {
		t.Fatalf("ResolveGame() error = %v", err)
	}
	if game.Name != "Catan" {
		t.Errorf("Name = %q, want Catan", game.Name)
	}

	_, err = svc.ResolveGame(context.Background(), "999999999")
	if Classify(err) != CategoryNotFound {
		t.Errorf("missing game category = %q, want not_found", Classify(err))
	}

	_, err = svc.ResolveGame(context.Background(), "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank id error = %v, want ErrInvalidInput", err)
	}
}

func TestResolveGame_CallerMutationIsolated(t *testing.T) {
	svc, manager, _ := setupTestService(t, DefaultConfig())
	manager.PutMetadata(&bgg.GameMetadata{ID: "13", Name: "Catan", Mechanics: []string{"Dice Rolling"}})

	game, err := svc.ResolveGame(context.Background(), "13")
	if err != nil {
		t.Fatalf("ResolveGame() error = %v", err)
	}
	game.Mechanics[0] = "changed"

	cached, _ := manager.GetMetadata("13")
	if cached.Mechanics[0] != "Dice Rolling" {
		t.Errorf("cached mechanics = %v after caller mutation", cached.Mechanics)
	}
}

func TestResolveGame_UpstreamTimeout(t *testing.T) {
	svc, _, upstream := setupTestService(t, DefaultConfig())
	upstream.batchErr = &client.UpstreamError{Kind: client.KindTimeout, Err: context.DeadlineExceeded}

	_, err := svc.ResolveGame(context.Background(), "13")
	if got := Classify(err); got != CategoryTimeout {
		t.Errorf("category = %q, want timeout", got)
	}
}

const catanWithVersions = `<item type="boardgame" id="13"><name type="primary" value="Catan"/>` +
	`<versions><item type="boardgameversion" id="4102"><name type="primary" value="German first edition"/>` +
	`<link type="language" id="2188" value="German"/></item></versions></item>`

func TestResolveGameDetails(t *testing.T) {
	svc, manager, upstream := setupTestService(t, DefaultConfig())
	ctx := context.Background()

	// cached without versions: must be refetched
	manager.PutMetadata(&bgg.GameMetadata{ID: "13", Name: "Catan"})
	upstream.add("13", catanWithVersions)

	game, err := svc.ResolveGameDetails(ctx, "13")
	if err != nil {
		t.Fatalf("ResolveGameDetails() error = %v", err)
	}
	if len(game.Versions) != 1 || game.Versions[0].Name != "German first edition" {
		t.Errorf("Versions = %+v", game.Versions)
	}
	if len(upstream.detailsCalls) != 1 || len(upstream.batchCalls) != 0 {
		t.Errorf("calls = %d details / %d batch, want 1/0", len(upstream.detailsCalls), len(upstream.batchCalls))
	}

	// the single answer now serves both variants from cache
	if _, err := svc.ResolveGameDetails(ctx, "13"); err != nil {
		t.Fatalf("ResolveGameDetails() second call error = %v", err)
	}
	if _, err := svc.ResolveGame(ctx, "13"); err != nil {
		t.Fatalf("ResolveGame() error = %v", err)
	}
	if calls := upstream.totalCalls(); calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestResolveGameDetails_NoVersionsPublished(t *testing.T) {
	svc, manager, upstream := setupTestService(t, DefaultConfig())
	upstream.add("1", testutil.ThingXML("1", "boardgame", "Die Macher", 1986))

	game, err := svc.ResolveGameDetails(context.Background(), "1")
	if err != nil {
		t.Fatalf("ResolveGameDetails() error = %v", err)
	}
	if game.Versions == nil || len(game.Versions) != 0 {
		t.Errorf("Versions = %#v, want loaded and empty", game.Versions)
	}

	cached, _ := manager.GetMetadata("1")
	if !cached.VersionsLoaded() {
		t.Error("cached record not marked as versions loaded")
	}
}
