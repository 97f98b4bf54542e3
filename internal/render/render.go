// Package render drives a headless Chrome instance to produce the
// rendered HTML of a single-page application for a single request.
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/renderx/prerender-gateway/internal/config"
	"github.com/renderx/prerender-gateway/internal/optimize"
)

// Sentinel errors, inspected by the router to label render outcomes in
// metrics. The router does not pick an HTTP status from them: /render
// answers 500 for any render error, and the primary path falls back to
// static serving.
var (
	ErrAtCapacity     = errors.New("render: at capacity")
	ErrBrowserLaunch  = errors.New("render: browser launch failed")
	ErrNavigateFailed = errors.New("render: navigation failed")
	ErrExtractFailed  = errors.New("render: content extraction failed")
)

// viewport is a device's emulated screen size.
type viewport struct {
	width, height int64
	mobile        bool
}

var viewports = map[string]viewport{
	"desktop": {width: 1920, height: 1080, mobile: false},
	"mobile":  {width: 375, height: 667, mobile: true},
	"tablet":  {width: 768, height: 1024, mobile: false},
}

func viewportFor(device string) viewport {
	if vp, ok := viewports[device]; ok {
		return vp
	}
	return viewports["desktop"]
}

const cleanupTimeout = 5 * time.Second

// Request describes one render job.
type Request struct {
	URL             string
	Device          string
	Origin          string
	UserAgent       string
	TimeoutMs       int
	MaxConcurrency  int
	RootSelector    string
	Strategy        string
	OptimizerOptions config.ResolvedOptimizerOptions
}

// Engine owns exactly one headless Chrome process for the server's
// lifetime. Launch is lazy and single-flighted; on disconnect the handle
// is cleared so the next render re-launches.
type Engine struct {
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	launch singleflight.Group

	browserCtx    context.Context
	browserCancel context.CancelFunc

	active atomic.Int32
}

// New constructs an Engine. The browser process is not started until the
// first Render call.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// ActiveRenders reports the number of renders currently admitted, for the
// /health endpoint.
func (e *Engine) ActiveRenders() int32 {
	return e.active.Load()
}

// Available reports whether the browser is launched and reachable.
func (e *Engine) Available() (bool, error) {
	ctx, err := e.ensureBrowser(context.Background())
	if err != nil {
		return false, err
	}
	return ctx != nil, nil
}

// Close shuts down the browser process, if running.
func (e *Engine) Close() {
	if e.browserCancel != nil {
		e.browserCancel()
	}
	if e.allocCancel != nil {
		e.allocCancel()
	}
}

func (e *Engine) ensureBrowser(ctx context.Context) (context.Context, error) {
	if e.browserCtx != nil && e.browserCtx.Err() == nil {
		return e.browserCtx, nil
	}

	v, err, _ := e.launch.Do("launch", func() (any, error) {
		if e.browserCtx != nil && e.browserCtx.Err() == nil {
			return e.browserCtx, nil
		}

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", "new"),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
			chromedp.Flag("disable-extensions", true),
		)
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
		}

		e.allocCtx, e.allocCancel = allocCtx, allocCancel
		e.browserCtx, e.browserCancel = browserCtx, browserCancel

		// Clear the handle when the browser disconnects so the next
		// caller relaunches instead of reusing a dead target.
		go func() {
			<-browserCtx.Done()
			if e.browserCtx == browserCtx {
				e.browserCtx, e.browserCancel = nil, nil
			}
		}()

		return browserCtx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(context.Context), nil
}

// acquire admits one render if the active count is below max. Returns
// false when at capacity.
func (e *Engine) acquire(max int32) bool {
	for {
		cur := e.active.Load()
		if cur >= max {
			return false
		}
		if e.active.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (e *Engine) release() {
	e.active.Add(-1)
}

// Render drives the browser through navigation, readiness waiting, and
// HTML extraction for req, applying the optimizer unless the effective
// strategy is ssr.
func (e *Engine) Render(ctx context.Context, req Request) (string, error) {
	max := int32(req.MaxConcurrency)
	if max <= 0 {
		max = 1
	}
	if !e.acquire(max) {
		return "", ErrAtCapacity
	}
	defer e.release()

	browserCtx, err := e.ensureBrowser(ctx)
	if err != nil {
		return "", err
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	renderCtx, renderCancel := context.WithTimeout(ctx, timeout)
	defer renderCancel()

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)

	html, renderErr := e.runTab(renderCtx, tabCtx, req)

	cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), cleanupTimeout)
	done := make(chan struct{})
	go func() {
		_ = chromedp.Cancel(tabCtx)
		tabCancel()
		close(done)
	}()
	select {
	case <-done:
	case <-cleanupCtx.Done():
		e.logger.Warn("render cleanup did not complete in time", zap.String("url", req.URL))
	}
	cleanupCancel()

	if renderErr != nil {
		return "", renderErr
	}

	if req.Strategy == "ssr" {
		return html, nil
	}
	return optimize.Optimize(html, req.OptimizerOptions), nil
}

func (e *Engine) runTab(ctx context.Context, tabCtx context.Context, req Request) (string, error) {
	start := time.Now()
	vp := viewportFor(req.Device)

	remaining := func() int64 {
		elapsed := time.Since(start).Milliseconds()
		r := int64(req.TimeoutMs) - elapsed
		if r < 1000 {
			return 1000
		}
		return r
	}

	setup := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			chromedp.ListenTarget(ctx, e.resourceFilterListener(ctx, req))
			return nil
		}),
		network.Enable(),
		fetch.Enable(),
		network.ClearBrowserCookies(),
		emulation.SetUserAgentOverride(orDefault(req.UserAgent, "RenderX/1.0")),
		emulation.SetDeviceMetricsOverride(vp.width, vp.height, 1.0, vp.mobile),
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorDeny),
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNavigateFailed, err)
	}

	navCtx, navCancel := context.WithTimeout(tabCtx, time.Duration(req.TimeoutMs)*time.Millisecond)
	defer navCancel()
	stopNav := context.AfterFunc(ctx, navCancel)
	defer stopNav()
	if err := chromedp.Run(navCtx, chromedp.Navigate(req.URL)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNavigateFailed, err)
	}

	waitIdle(tabCtx, time.Duration(min64(15000, remaining()))*time.Millisecond)

	selectors := []string{req.RootSelector, "#app", "[data-reactroot]", "body > *"}
	matched := false
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		budget := time.Duration(max64(15000, remaining())) * time.Millisecond
		if waitFirstChild(tabCtx, sel, budget) {
			matched = true
			break
		}
	}

	if !matched {
		pollTextContent(tabCtx, req.RootSelector, time.Duration(max64(10000, remaining()))*time.Millisecond)
	}

	waitIdle(tabCtx, time.Duration(min64(10000, remaining()))*time.Millisecond)

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	return html, nil
}

// resourceFilterListener permits only document/script/xhr/fetch resource
// types, aborting everything else, and injects the forwarded Origin plus
// the internal loopback marker header on permitted requests.
func (e *Engine) resourceFilterListener(ctx context.Context, req Request) func(ev any) {
	allowed := map[network.ResourceType]bool{
		network.ResourceTypeDocument: true,
		network.ResourceTypeScript:   true,
		network.ResourceTypeXHR:      true,
		network.ResourceTypeFetch:    true,
	}
	return func(ev any) {
		pe, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()

			if !allowed[pe.ResourceType] {
				_ = fetch.FailRequest(pe.RequestID, network.ErrorReasonAborted).Do(cmdCtx)
				return
			}

			headers := []*fetch.HeaderEntry{
				{Name: "X-RenderX-Internal", Value: "true"},
			}
			if req.Origin != "" {
				headers = append(headers, &fetch.HeaderEntry{Name: "Origin", Value: req.Origin})
			}
			if err := fetch.ContinueRequest(pe.RequestID).WithHeaders(headers).Do(cmdCtx); err != nil {
				_ = fetch.FailRequest(pe.RequestID, network.ErrorReasonAborted).Do(cmdCtx)
			}
		}()
	}
}

func waitIdle(ctx context.Context, budget time.Duration) {
	idleCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	ch := make(chan struct{})
	listenCtx, listenCancel := context.WithCancel(idleCtx)
	defer listenCancel()

	chromedp.ListenTarget(listenCtx, func(ev any) {
		if _, ok := ev.(*network.EventLoadingFinished); ok {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	})

	timer := time.NewTimer(500 * time.Millisecond)
	defer timer.Stop()
	for {
		select {
		case <-idleCtx.Done():
			return
		case <-ch:
			timer.Reset(500 * time.Millisecond)
		case <-timer.C:
			return
		}
	}
}

func waitFirstChild(ctx context.Context, selector string, budget time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var count int
	err := chromedp.Run(waitCtx, chromedp.Poll(
		fmt.Sprintf(`document.querySelector(%q) && document.querySelector(%q).children.length`, selector, selector),
		&count,
	))
	return err == nil && count > 0
}

func pollTextContent(ctx context.Context, selector string, budget time.Duration) {
	sel := orDefault(selector, "#root")
	pollCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var text string
	_ = chromedp.Run(pollCtx, chromedp.Poll(
		fmt.Sprintf(`(document.querySelector(%q) || {}).textContent || ""`, sel),
		&text,
		chromedp.WithPollingInterval(100*time.Millisecond),
	))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
