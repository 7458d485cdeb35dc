package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"tradelink/internal/transport"
)

// orderFormJS reads the cart session id the storefront scripts keep in memory.
const orderFormJS = `(function(){try{return (window.vtexjs&&vtexjs.checkout&&vtexjs.checkout.orderFormId)||""}catch(e){return ""}})()`

// ChromeOptions configures the Chrome process.
type ChromeOptions struct {
	ExecPath string
	Headless bool
	Logger   *slog.Logger
}

// Chrome owns one browser process; each Open call gets its own tab.
type Chrome struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	logger      *slog.Logger
}

// NewChrome starts an exec allocator. The process is launched on first Open.
func NewChrome(opts ChromeOptions) *Chrome {
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.UserAgent(transport.ChromeUserAgent),
		chromedp.WindowSize(1400, 900),
	)
	if opts.ExecPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), execOpts...)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Chrome{allocCtx: allocCtx, allocCancel: cancel, logger: logger}
}

// Open implements Opener.
func (c *Chrome) Open(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(c.allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		c.logger.Debug(fmt.Sprintf(format, args...))
	}))
	// first Run starts the browser or the tab
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("starting browser tab: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: cancel}, nil
}

// Close stops the browser process.
func (c *Chrome) Close() {
	c.allocCancel()
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, bounded by both the caller context and timeout.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(stepCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, 30*time.Second,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	opt := queryOption(selector)
	return p.run(ctx, 10*time.Second,
		chromedp.WaitVisible(selector, opt),
		chromedp.ScrollIntoView(selector, opt),
		chromedp.Click(selector, opt),
	)
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	opt := queryOption(selector)
	return p.run(ctx, 10*time.Second,
		chromedp.WaitVisible(selector, opt),
		chromedp.Clear(selector, opt),
		chromedp.SendKeys(selector, value, opt),
	)
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitVisible(selector, queryOption(selector)))
}

func (p *chromePage) ScrollBy(ctx context.Context, pixels int) error {
	return p.run(ctx, 5*time.Second, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", pixels), nil))
}

func (p *chromePage) OrderFormID(ctx context.Context) (string, error) {
	var id string
	if err := p.run(ctx, 5*time.Second, chromedp.Evaluate(orderFormJS, &id)); err != nil {
		return "", err
	}
	return id, nil
}

func (p *chromePage) Close() {
	p.cancel()
}

// queryOption picks XPath search for selectors starting with "/" and CSS otherwise.
func queryOption(selector string) chromedp.QueryOption {
	if strings.HasPrefix(selector, "/") {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}
