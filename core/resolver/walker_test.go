package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/gonpm/core"
	"github.com/willibrandon/gonpm/packaging"
	"github.com/willibrandon/gonpm/registry"
)

// fakeSource is an in-memory registry keyed by name, then version.
type fakeSource struct {
	mu        sync.Mutex
	packages  map[string][]*registry.ResolvedPackage // listing order
	failIndex map[string]error
	delay     time.Duration
	indexHits map[string]int
	manHits   map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		packages:  make(map[string][]*registry.ResolvedPackage),
		failIndex: make(map[string]error),
		indexHits: make(map[string]int),
		manHits:   make(map[string]int),
	}
}

func (f *fakeSource) add(name, ver string, deps map[string]string) *fakeSource {
	f.packages[name] = append(f.packages[name], &registry.ResolvedPackage{
		Name:         name,
		Version:      ver,
		Dependencies: deps,
		Dist:         registry.Dist{Tarball: "http://r/" + name + "-" + ver + ".tgz"},
	})
	return f
}

func (f *fakeSource) FetchPackageIndex(ctx context.Context, name string) (*registry.PackageIndex, error) {
	f.mu.Lock()
	f.indexHits[name]++
	err := f.failIndex[name]
	versions := f.packages[name]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if versions == nil {
		return nil, core.NetworkError("http://r/"+name, "unexpected status 404", nil)
	}

	idx := &registry.PackageIndex{Name: name, DistTags: map[string]string{}}
	for _, p := range versions {
		idx.PublishedVersions = append(idx.PublishedVersions, p.Version)
	}
	return idx, nil
}

func (f *fakeSource) FetchResolvedPackage(_ context.Context, name, ver string) (*registry.ResolvedPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manHits[name+"@"+ver]++
	for _, p := range f.packages[name] {
		if p.Version == ver {
			return p, nil
		}
	}
	return nil, core.NetworkError("http://r/"+name+"/"+ver, "unexpected status 404", nil)
}

func (f *fakeSource) hits(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexHits[name]
}

// fakeInstaller records installs instead of extracting.
type fakeInstaller struct {
	mu       sync.Mutex
	installs map[string][]string // name -> tarballs
	fail     map[string]error
}

func newFakeInstaller() *fakeInstaller {
	return &fakeInstaller{installs: make(map[string][]string), fail: make(map[string]error)}
}

func (f *fakeInstaller) Root() string { return "/fake/node_modules" }

func (f *fakeInstaller) Install(_ context.Context, name string, dist registry.Dist) (*packaging.InstallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	f.installs[name] = append(f.installs[name], dist.Tarball)
	return &packaging.InstallResult{Name: name}, nil
}

func (f *fakeInstaller) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.installs[name])
}

// eventLog collects observer events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnTransition(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) statesOf(name string) []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []State
	for _, e := range l.events {
		if e.Request.Name == name && !e.Deduplicated {
			out = append(out, e.State)
		}
	}
	return out
}

func roots(deps map[string]string) []core.DependencyRequest {
	return core.RequestsFrom(deps, "")
}

func TestWalker_SinglePackage(t *testing.T) {
	src := newFakeSource().add("left-pad", "1.0.0", nil).add("left-pad", "1.3.0", nil)
	inst := newFakeInstaller()
	log := &eventLog{}
	w := NewWalker(src, inst, WithObserver(log))

	n, err := w.Run(context.Background(), roots(map[string]string{"left-pad": "^1.3.0"}))
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"http://r/left-pad-1.3.0.tgz"}, inst.installs["left-pad"])
	assert.Equal(t, []State{StateResolving, StateInstalling, StateExpanding, StateDone}, log.statesOf("left-pad"))

	nodes := w.Visited().Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "1.3.0", nodes[0].Version)
	assert.False(t, nodes[0].Fallback)
}

func TestWalker_DedupByName(t *testing.T) {
	// a -> b, c; b -> c, a; c -> a (cycle through every node)
	src := newFakeSource().
		add("a", "1.0.0", map[string]string{"b": "^1.0.0", "c": "^1.0.0"}).
		add("b", "1.0.0", map[string]string{"c": "1.0.0", "a": "*"}).
		add("c", "1.0.0", map[string]string{"a": "^1.0.0"})
	inst := newFakeInstaller()
	w := NewWalker(src, inst)

	n, err := w.Run(context.Background(), roots(map[string]string{"a": "^1.0.0", "b": "^1.0.0"}))
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, inst.count(name), "installs of %s", name)
		assert.Equal(t, 1, src.hits(name), "index fetches of %s", name)
	}
}

func TestWalker_ConcurrentFanOut(t *testing.T) {
	src := newFakeSource().
		add("a", "1.0.0", map[string]string{"c": "^1.0.0"}).
		add("b", "1.0.0", map[string]string{"c": "~1.2.0"}).
		add("c", "1.2.0", nil).
		add("c", "1.2.5", nil)
	src.delay = 5 * time.Millisecond
	inst := newFakeInstaller()
	var w *Walker

	for range 20 {
		// Fresh walker per iteration: the visited set is per run.
		w = NewWalker(src, inst)
		inst.installs = map[string][]string{}

		n, err := w.Run(context.Background(), roots(map[string]string{"a": "1.0.0", "b": "1.0.0"}))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, 1, inst.count("c"))
	}

	var claimedBy string
	for _, node := range w.Visited().Nodes() {
		if node.Request.Name == "c" {
			claimedBy = node.Request.Parent
			assert.Equal(t, "1.2.0", node.Version, "first match in listing order satisfies both ranges")
		}
	}
	assert.Contains(t, []string{"a", "b"}, claimedBy)
}

func TestWalker_DevDependenciesAreExpanded(t *testing.T) {
	src := newFakeSource().add("b", "1.0.0", nil).add("d", "1.0.0", nil)
	src.packages["a"] = []*registry.ResolvedPackage{{
		Name:            "a",
		Version:         "1.0.0",
		Dependencies:    map[string]string{"b": "1"},
		DevDependencies: map[string]string{"d": "1"},
	}}
	inst := newFakeInstaller()

	n, err := NewWalker(src, inst).Run(context.Background(), roots(map[string]string{"a": "1"}))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, inst.count("d"))
}

func TestWalker_Fallback(t *testing.T) {
	src := newFakeSource().add("x", "1.0.0", nil).add("x", "2.5.0", nil).add("x", "2.0.0", nil)
	inst := newFakeInstaller()
	w := NewWalker(src, inst)

	_, err := w.Run(context.Background(), roots(map[string]string{"x": "^9.0.0"}))
	require.NoError(t, err)

	node := w.Visited().Nodes()[0]
	assert.Equal(t, "2.5.0", node.Version)
	assert.True(t, node.Fallback)
}

func TestWalker_Alias(t *testing.T) {
	src := newFakeSource().add("left-pad", "1.3.0", nil)
	inst := newFakeInstaller()
	w := NewWalker(src, inst)

	n, err := w.Run(context.Background(), roots(map[string]string{"my-pad": "npm:left-pad@^1.0.0"}))
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, 1, src.hits("left-pad"))
	assert.Zero(t, src.hits("my-pad"))
	assert.Equal(t, []string{"http://r/left-pad-1.3.0.tgz"}, inst.installs["my-pad"])
}

func TestWalker_FirstErrorIsAnnotated(t *testing.T) {
	src := newFakeSource().
		add("a", "1.0.0", map[string]string{"broken": "^2.0.0"})
	inst := newFakeInstaller()
	log := &eventLog{}

	_, err := NewWalker(src, inst, WithObserver(log)).
		Run(context.Background(), roots(map[string]string{"a": "^1.0.0"}))
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrNetwork)

	var cerr *core.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "broken", cerr.Package)
	assert.Equal(t, "^2.0.0", cerr.Range)

	assert.Equal(t, StateFailed, last(log.statesOf("broken")))
	assert.Equal(t, StateFailed, last(log.statesOf("a")), "failure propagates to the parent")
}

func TestWalker_InstallErrorCarriesVersion(t *testing.T) {
	src := newFakeSource().add("a", "1.0.0", nil)
	inst := newFakeInstaller()
	inst.fail["a"] = core.ExtractionError("", "/x", "write file", errors.New("disk full"))

	_, err := NewWalker(src, inst).Run(context.Background(), roots(map[string]string{"a": "^1.0.0"}))
	require.ErrorIs(t, err, core.ErrExtraction)

	var cerr *core.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "a", cerr.Package)
	assert.Equal(t, "1.0.0", cerr.Version)
	assert.Equal(t, "/x", cerr.Path)
}

func TestWalker_FirstErrorStopsNewWork(t *testing.T) {
	// "bad" fails immediately; "slow" has a long chain that must not be
	// walked to the end once the run is cancelled.
	src := newFakeSource()
	src.failIndex["bad"] = core.NetworkError("http://r/bad", "unexpected status 500", nil)
	src.packages["bad"] = nil
	prev := ""
	for i := 19; i >= 0; i-- {
		name := "slow" + string(rune('a'+i))
		var deps map[string]string
		if prev != "" {
			deps = map[string]string{prev: "1.0.0"}
		}
		src.add(name, "1.0.0", deps)
		prev = name
	}
	src.delay = 10 * time.Millisecond
	inst := newFakeInstaller()

	start := time.Now()
	n, err := NewWalker(src, inst).Run(context.Background(), roots(map[string]string{"bad": "1", "slowa": "1"}))
	require.ErrorIs(t, err, core.ErrNetwork)
	assert.Less(t, n, 21)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestWalker_CancelledContext(t *testing.T) {
	src := newFakeSource().add("a", "1.0.0", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := NewWalker(src, newFakeInstaller()).Run(ctx, roots(map[string]string{"a": "1"}))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestVisitedSet_Claim(t *testing.T) {
	s := NewVisitedSet()

	var wg sync.WaitGroup
	wins := make(chan string, 50)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			parent := string(rune('a' + i%26))
			if _, ok := s.Claim(core.NewDependencyRequest("c", "^1.0.0", parent)); ok {
				wins <- parent
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains("c"))
	assert.False(t, s.Contains("d"))
}

func last(states []State) State {
	if len(states) == 0 {
		return StatePending
	}
	return states[len(states)-1]
}
