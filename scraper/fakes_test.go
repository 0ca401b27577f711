package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-resolve-collections/browser"
	"github.com/aluiziolira/go-resolve-collections/config"
	"github.com/aluiziolira/go-resolve-collections/models"
)

var errNavigation = errors.New("net::ERR_PROXY_CONNECTION_FAILED")

// fakePage describes what a URL renders: the visible selectors, their
// text and attributes.
type fakePage struct {
	visible map[string]bool
	text    map[string]string
	attrs   map[string]map[string]string
	textErr map[string]error
	panics  bool
}

// fakeSite maps URLs to pages. Navigation to a URL fails navFailures[url]
// times before succeeding.
type fakeSite struct {
	mu          sync.Mutex
	pages       map[string]*fakePage
	navFailures map[string]int
	navCalls    map[string]int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:       make(map[string]*fakePage),
		navFailures: make(map[string]int),
		navCalls:    make(map[string]int),
	}
}

func (s *fakeSite) navigate(url string) (*fakePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navCalls[url]++
	if s.navFailures[url] > 0 {
		s.navFailures[url]--
		return nil, errNavigation
	}
	page, ok := s.pages[url]
	if !ok {
		page = &fakePage{}
	}
	return page, nil
}

func (s *fakeSite) calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navCalls[url]
}

type fakeSession struct {
	site     *fakeSite
	proxy    string
	current  *fakePage
	closed   atomic.Int32
	closeErr error
}

func (fs *fakeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	page, err := fs.site.navigate(url)
	if err != nil {
		return err
	}
	fs.current = page
	return nil
}

func (fs *fakeSession) WaitVisible(ctx context.Context, loc browser.Locator, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fs.current == nil {
		return fmt.Errorf("%w: %s", browser.ErrWaitTimeout, loc)
	}
	if fs.current.panics {
		panic("renderer crashed")
	}
	if !fs.current.visible[loc.Value] {
		return fmt.Errorf("%w: %s", browser.ErrWaitTimeout, loc)
	}
	return nil
}

func (fs *fakeSession) Text(ctx context.Context, loc browser.Locator) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if fs.current == nil {
		return "", false, nil
	}
	if err := fs.current.textErr[loc.Value]; err != nil {
		return "", false, err
	}
	text, ok := fs.current.text[loc.Value]
	return text, ok, nil
}

func (fs *fakeSession) Attribute(ctx context.Context, loc browser.Locator, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if fs.current == nil {
		return "", false, nil
	}
	value, ok := fs.current.attrs[loc.Value][name]
	return value, ok, nil
}

func (fs *fakeSession) UserAgent() string { return "fake-agent" }
func (fs *fakeSession) Proxy() string     { return fs.proxy }

func (fs *fakeSession) Close() error {
	fs.closed.Add(1)
	return fs.closeErr
}

type fakeFactory struct {
	site     *fakeSite
	proxy    string
	closeErr error
	// failOn lists 1-based NewSession calls that fail.
	failOn map[int]bool

	mu        sync.Mutex
	calls     int
	sessions  []*fakeSession
	active    atomic.Int32
	maxActive atomic.Int32
}

func (ff *fakeFactory) NewSession(ctx context.Context, opts browser.SessionOptions) (browser.Session, error) {
	ff.mu.Lock()
	ff.calls++
	call := ff.calls
	ff.mu.Unlock()

	if ff.failOn[call] {
		return nil, &browser.SessionError{Proxy: ff.proxy, Err: errors.New("chrome failed to start")}
	}

	session := &fakeSession{site: ff.site, proxy: ff.proxy, closeErr: ff.closeErr}
	ff.mu.Lock()
	ff.sessions = append(ff.sessions, session)
	ff.mu.Unlock()

	n := ff.active.Add(1)
	for {
		peak := ff.maxActive.Load()
		if n <= peak || ff.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	return &trackedSession{fakeSession: session, factory: ff}, nil
}

func (ff *fakeFactory) allClosedOnce() bool {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	for _, s := range ff.sessions {
		if s.closed.Load() != 1 {
			return false
		}
	}
	return true
}

func (ff *fakeFactory) sessionCount() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.sessions)
}

// trackedSession keeps the factory's active-session count.
type trackedSession struct {
	*fakeSession
	factory *fakeFactory
	once    sync.Once
}

func (ts *trackedSession) Close() error {
	ts.once.Do(func() { ts.factory.active.Add(-1) })
	return ts.fakeSession.Close()
}

type recordingSink struct {
	mu      sync.Mutex
	records []*models.ResolvedRecord
	err     error
}

func (rs *recordingSink) Process(records ...*models.ResolvedRecord) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.err != nil {
		return rs.err
	}
	rs.records = append(rs.records, records...)
	return nil
}

func (rs *recordingSink) addresses() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]string, 0, len(rs.records))
	for _, r := range rs.records {
		out = append(out, r.ScanAddress)
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "https://market.test/"
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assetURL(address string) string {
	return "https://market.test/assets/ethereum/0x" + address + "/7804"
}

// addCollection registers a fully resolvable collection and its top asset.
func addCollection(site *fakeSite, cfg *config.Config, address, owner, bestOffer string) {
	sel := cfg.Selectors
	home := &fakePage{
		visible: map[string]bool{sel.AssetAnchor: true},
		text:    map[string]string{sel.CollectionLabel: `"` + address + `"`},
		attrs:   map[string]map[string]string{sel.AssetAnchor: {"href": assetURL(address)}},
	}
	if owner != "" {
		home.visible[sel.OwnerName] = true
		home.text[sel.OwnerName] = owner
	}
	asset := &fakePage{
		visible: map[string]bool{sel.CollectionLink: true},
		text:    map[string]string{sel.CollectionLink: address + " collection"},
	}
	if bestOffer != "" {
		asset.text[sel.BestOffer] = bestOffer
	}

	site.mu.Lock()
	site.pages[cfg.HomeURL(address)] = home
	site.pages[assetURL(address)] = asset
	site.mu.Unlock()
}
