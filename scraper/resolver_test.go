package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-resolve-collections/browser"
	"github.com/aluiziolira/go-resolve-collections/models"
)

func newTestResolver(t *testing.T, metrics *Metrics) *Resolver {
	t.Helper()
	r := NewResolver(testConfig(), metrics, testLogger())
	r.now = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) }
	return r
}

func TestResolverFullRecord(t *testing.T) {
	r := newTestResolver(t, nil)
	site := newFakeSite()
	addCollection(site, r.cfg, "cryptopunks", "Larva Labs", "0.5 ETH")

	record, err := r.Resolve(context.Background(), &fakeSession{site: site}, "cryptopunks")
	require.NoError(t, err)
	require.Equal(t, &models.ResolvedRecord{
		TodaysDate:     "10-18-2026",
		ScanAddress:    "cryptopunks",
		CollectionName: "cryptopunks collection",
		Collection:     "cryptopunks",
		AssetNumber:    "7804",
		BestOffer:      "0.5 ETH",
		Premium:        models.PremiumYes,
	}, record)
}

func TestResolverPremiumFlag(t *testing.T) {
	errDetached := errors.New("node is detached from document")
	tests := []struct {
		name    string
		owner   string
		textErr error
		hidden  bool
		want    string
	}{
		{name: "named owner", owner: "Larva Labs", want: "Y"},
		{name: "unnamed owner", owner: "Unnamed", want: ""},
		{name: "unnamed prefix", owner: "Unnamed-3f2a", want: ""},
		{name: "no owner element", owner: "", want: ""},
		{name: "owner text lookup fails", owner: "Unnamed", textErr: errDetached, want: ""},
		{name: "named owner text lookup fails", owner: "Larva Labs", textErr: errDetached, want: ""},
		{name: "visible owner without text", owner: "Larva Labs", hidden: true, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t, nil)
			site := newFakeSite()
			addCollection(site, r.cfg, "azuki", tt.owner, "1.2 ETH")
			home := site.pages[r.cfg.HomeURL("azuki")]
			if tt.textErr != nil {
				home.textErr = map[string]error{r.cfg.Selectors.OwnerName: tt.textErr}
			}
			if tt.hidden {
				delete(home.text, r.cfg.Selectors.OwnerName)
			}

			record, err := r.Resolve(context.Background(), &fakeSession{site: site}, "azuki")
			require.NoError(t, err)
			require.Equal(t, tt.want, record.Premium)
		})
	}
}

func TestResolverSkipsWhenAssetAnchorMissing(t *testing.T) {
	metrics := NewMetrics()
	r := newTestResolver(t, metrics)
	site := newFakeSite()
	site.pages[r.cfg.HomeURL("bad-collection")] = &fakePage{}

	record, err := r.Resolve(context.Background(), &fakeSession{site: site}, "bad-collection")
	require.Nil(t, record)

	var skip *SkipError
	require.ErrorAs(t, err, &skip)
	require.Equal(t, StageAssetAnchor, skip.Stage)
	require.ErrorIs(t, err, browser.ErrWaitTimeout)
	require.Equal(t, 0, site.calls(assetURL("bad-collection")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.FieldsMissingTotal.WithLabelValues("premium")))
}

func TestResolverSkipsWhenAssetStatsMissing(t *testing.T) {
	r := newTestResolver(t, nil)
	site := newFakeSite()
	addCollection(site, r.cfg, "doodles", "", "")
	site.pages[assetURL("doodles")] = &fakePage{}

	_, err := r.Resolve(context.Background(), &fakeSession{site: site}, "doodles")
	var skip *SkipError
	require.ErrorAs(t, err, &skip)
	require.Equal(t, StageAssetStats, skip.Stage)
}

func TestResolverSkipsWhenAnchorHasNoHref(t *testing.T) {
	r := newTestResolver(t, nil)
	site := newFakeSite()
	addCollection(site, r.cfg, "moonbirds", "", "")
	site.pages[r.cfg.HomeURL("moonbirds")].attrs = nil

	_, err := r.Resolve(context.Background(), &fakeSession{site: site}, "moonbirds")
	var skip *SkipError
	require.ErrorAs(t, err, &skip)
	require.Equal(t, StageFollowAsset, skip.Stage)
	require.ErrorIs(t, err, errMissingHref)
}

func TestResolverBestEffortFields(t *testing.T) {
	metrics := NewMetrics()
	r := newTestResolver(t, metrics)
	site := newFakeSite()
	addCollection(site, r.cfg, "cryptopunks", "", "")
	site.pages[r.cfg.HomeURL("cryptopunks")].text = nil
	site.pages[assetURL("cryptopunks")].text = nil

	record, err := r.Resolve(context.Background(), &fakeSession{site: site}, "cryptopunks")
	require.NoError(t, err)
	require.Equal(t, "cryptopunks", record.ScanAddress)
	require.Equal(t, "7804", record.AssetNumber)
	require.Empty(t, record.BestOffer)
	require.Empty(t, record.CollectionName)
	require.Empty(t, record.Collection)
	require.Empty(t, record.Premium)

	for _, field := range []string{"premium", "collection", "collection_name", "best_offer"} {
		require.Equal(t, 1.0, testutil.ToFloat64(metrics.FieldsMissingTotal.WithLabelValues(field)), field)
	}
}

func TestResolverRetriesNavigation(t *testing.T) {
	metrics := NewMetrics()
	r := newTestResolver(t, metrics)
	site := newFakeSite()
	addCollection(site, r.cfg, "azuki", "", "0.1 ETH")
	site.navFailures[r.cfg.HomeURL("azuki")] = 1

	record, err := r.Resolve(context.Background(), &fakeSession{site: site}, "azuki")
	require.NoError(t, err)
	require.Equal(t, "0.1 ETH", record.BestOffer)
	require.Equal(t, 2, site.calls(r.cfg.HomeURL("azuki")))
	require.Equal(t, 1, r.TotalRetries())
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RetriesTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.NavigationsTotal.WithLabelValues("collection")))
}

func TestResolverNavigationExhaustsRetries(t *testing.T) {
	r := newTestResolver(t, nil)
	site := newFakeSite()
	addCollection(site, r.cfg, "azuki", "", "")
	site.navFailures[assetURL("azuki")] = 10

	_, err := r.Resolve(context.Background(), &fakeSession{site: site}, "azuki")
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	require.Equal(t, assetURL("azuki"), navErr.URL)
	require.ErrorIs(t, err, errNavigation)
	require.Equal(t, r.cfg.MaxRetries+1, site.calls(assetURL("azuki")))
}

func TestResolverHonoursCancel(t *testing.T) {
	r := newTestResolver(t, nil)
	site := newFakeSite()
	addCollection(site, r.cfg, "azuki", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, &fakeSession{site: site}, "azuki")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, site.calls(r.cfg.HomeURL("azuki")))
}

func TestRetryPolicyBackoffCapped(t *testing.T) {
	rp := newRetryPolicy(3, 200*time.Millisecond, 500*time.Millisecond, nil, testLogger())

	require.Equal(t, 200*time.Millisecond, rp.backoff(1))
	require.Equal(t, 400*time.Millisecond, rp.backoff(2))
	require.Equal(t, 500*time.Millisecond, rp.backoff(4))
	require.Equal(t, 200*time.Millisecond, rp.backoff(0))
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	rp := newRetryPolicy(5, time.Hour, time.Hour, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- rp.Do(ctx, "test", func(context.Context) error {
			calls++
			return errNavigation
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, errNavigation)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancel")
	}
	require.Equal(t, 1, calls)
	require.Equal(t, 1, rp.TotalRetries())
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "canceled", err: context.Canceled, expected: "canceled"},
		{name: "skip", err: &SkipError{Stage: StageAssetAnchor, Err: browser.ErrWaitTimeout}, expected: "structural_missing"},
		{name: "session", err: &browser.SessionError{Err: errors.New("boom")}, expected: "session"},
		{name: "navigation", err: &NavigationError{URL: "https://market.test/x", Err: errNavigation}, expected: "navigation"},
		{name: "panic", err: &PanicError{Value: "boom"}, expected: "panic"},
		{name: "deadline", err: context.DeadlineExceeded, expected: "timeout"},
		{name: "wait timeout", err: errors.Join(errors.New("wait"), browser.ErrWaitTimeout), expected: "timeout"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(tt.err); got != tt.expected {
				t.Fatalf("errorTypeLabel(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.IncAddress("resolved")
	m.IncAddressBy("canceled", 2)
	m.IncNavigation("collection")
	m.ObserveDuration(time.Second)
	m.IncRecords()
	m.IncRetries()
	m.IncError("other")
	m.IncSkip(StageAssetAnchor)
	m.IncFieldMissing("best_offer")
	m.SessionOpened()
	m.SessionClosed()
}
