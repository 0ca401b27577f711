package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
)

// ChromeOptions configures sessions launched by a ChromeFactory.
type ChromeOptions struct {
	// ExecPath overrides the Chrome binary lookup.
	ExecPath        string
	UserAgents      *Pool
	Proxies         *Pool
	NavigateTimeout time.Duration
	LookupTimeout   time.Duration
	Logger          *slog.Logger
}

// ChromeFactory launches one Chrome process per session via chromedp.
type ChromeFactory struct {
	opts   ChromeOptions
	logger *slog.Logger
}

// NewChromeFactory validates opts and returns a factory.
func NewChromeFactory(opts ChromeOptions) (*ChromeFactory, error) {
	if opts.UserAgents == nil || opts.UserAgents.Len() == 0 {
		return nil, errors.New("chrome factory requires a non-empty user agent pool")
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = time.Minute
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeFactory{opts: opts, logger: logger}, nil
}

// NewSession starts a browser with a random user agent and, when requested,
// a random proxy. Images, geolocation prompts and automation markers are
// disabled for every session.
func (f *ChromeFactory) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	userAgent := f.opts.UserAgents.Pick()

	var proxy string
	if opts.UseProxy {
		if f.opts.Proxies == nil || f.opts.Proxies.Len() == 0 {
			return nil, &SessionError{Err: errors.New("proxy requested but the proxy pool is empty")}
		}
		proxy = f.opts.Proxies.Pick()
		f.logger.Info("proxy selected", slog.String("proxy", proxy))
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], launchOptions(userAgent, proxy, opts.Headless)...)
	if f.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(f.opts.ExecPath))
	}

	// The browser lives until Close; callers' contexts only bound individual calls.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	release := func() {
		tabCancel()
		allocCancel()
	}

	stop := context.AfterFunc(ctx, release)
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx)
		return err
	}))
	stop()
	if err != nil {
		release()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &SessionError{Proxy: proxy, Err: err}
	}

	deny := cdpbrowser.SetPermission(&cdpbrowser.PermissionDescriptor{Name: "geolocation"}, cdpbrowser.PermissionSettingDenied)
	if err := chromedp.Run(tabCtx, deny); err != nil {
		f.logger.Debug("deny geolocation permission failed", slog.Any("error", err))
	}

	return &chromeSession{
		tabCtx:          tabCtx,
		release:         release,
		userAgent:       userAgent,
		proxy:           proxy,
		navigateTimeout: f.opts.NavigateTimeout,
		lookupTimeout:   f.opts.LookupTimeout,
	}, nil
}

func launchOptions(userAgent, proxy string, headless bool) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.UserAgent(userAgent),
		chromedp.Flag("headless", headless),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("dns-prefetch-disable", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	}
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}
	return opts
}

type chromeSession struct {
	tabCtx  context.Context
	release func()

	userAgent string
	proxy     string

	navigateTimeout time.Duration
	lookupTimeout   time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (s *chromeSession) UserAgent() string { return s.userAgent }

func (s *chromeSession) Proxy() string { return s.proxy }

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.navigateTimeout, chromedp.Navigate(url))
}

func (s *chromeSession) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	sel, err := cssSelector(loc)
	if err != nil {
		return err
	}
	err = s.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, loc)
	}
	return err
}

func (s *chromeSession) Text(ctx context.Context, loc Locator) (string, bool, error) {
	return s.lookup(ctx, loc, "el.innerText")
}

func (s *chromeSession) Attribute(ctx context.Context, loc Locator, name string) (string, bool, error) {
	quoted, err := json.Marshal(name)
	if err != nil {
		return "", false, err
	}
	return s.lookup(ctx, loc, "el["+string(quoted)+"]")
}

type lookupResult struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

// lookup evaluates expr against the first element matching loc without
// waiting for it to appear.
func (s *chromeSession) lookup(ctx context.Context, loc Locator, expr string) (string, bool, error) {
	sel, err := cssSelector(loc)
	if err != nil {
		return "", false, err
	}
	quoted, err := json.Marshal(sel)
	if err != nil {
		return "", false, err
	}
	script := fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return {found: false, value: ""};
	const v = %s;
	return {found: true, value: v == null ? "" : String(v)};
})()`, quoted, expr)

	var res lookupResult
	if err := s.run(ctx, s.lookupTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return "", false, fmt.Errorf("lookup %s: %w", loc, err)
	}
	return res.Value, res.Found, nil
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		err := chromedp.Cancel(s.tabCtx)
		s.release()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// cssSelector expresses loc as a CSS selector.
func cssSelector(loc Locator) (string, error) {
	if loc.Value == "" {
		return "", fmt.Errorf("locator %s has no value", loc.By)
	}
	switch loc.By {
	case ByCSS, ByTagName:
		return loc.Value, nil
	case ByID:
		return "[id=" + strconv.Quote(loc.Value) + "]", nil
	case ByName:
		return "[name=" + strconv.Quote(loc.Value) + "]", nil
	case ByClassName:
		return "[class~=" + strconv.Quote(loc.Value) + "]", nil
	default:
		return "", fmt.Errorf("unsupported locator kind %s", loc.By)
	}
}
