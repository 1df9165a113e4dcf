// Package collyfetcher fetches hiscores leaderboard pages and player stat
// sheets using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/clock/system"
	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/metrics"
	"github.com/JakeFAU/hiscore-crawler/internal/proxy"
)

// DefaultBaseURL is the live hiscores host.
const DefaultBaseURL = "https://secure.runescape.com"

const (
	defaultTimeout  = 30 * time.Second
	rateLimitMarker = "your IP has been temporarily blocked"
)

// Config controls collector behavior.
type Config struct {
	BaseURL string
	// UserAgent pins the User-Agent header; empty means a random one per
	// request.
	UserAgent string
	Timeout   time.Duration
}

// Waiter throttles outbound requests.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements crawler.PageFetcher and crawler.UserFetcher.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Waiter
	clock         crawler.Clock
	tracer        trace.Tracer
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// response is what the hooks capture from one visit.
type response struct {
	status int
	body   []byte
}

// New builds a Fetcher. The rotator and limiter are optional.
func New(cfg Config, rotator *proxy.Rotator, limiter Waiter, logger *zap.Logger) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if rotator.Len() > 0 {
		c.SetProxyFunc(rotator.ProxyFunc())
	}

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		clock:         system.New(),
		tracer:        otel.Tracer("github.com/JakeFAU/hiscore-crawler/fetcher"),
		logger:        logger,
	}
}

// FetchPage implements crawler.PageFetcher. A page past the end of the
// leaderboard parses to an empty slice.
func (f *Fetcher) FetchPage(ctx context.Context, req crawler.PageRequest) ([]hiscore.CategoryRecord, error) {
	rawURL, err := f.PageURL(req)
	if err != nil {
		return nil, err
	}
	body, err := f.get(ctx, "page", rawURL)
	if err != nil {
		return nil, err
	}
	records, err := parsePage(body)
	if err != nil {
		return nil, fmt.Errorf("page %d of %s: %w", req.Page, req.Category.Name, err)
	}
	return records, nil
}

// FetchUser implements crawler.UserFetcher.
func (f *Fetcher) FetchUser(ctx context.Context, req crawler.UserRequest) (*hiscore.PlayerRecord, error) {
	body, err := f.get(ctx, "user", f.UserURL(req))
	if err != nil {
		return nil, err
	}
	rec, err := hiscore.ParsePlayerCSV(req.Username, string(body), f.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("player %q: %v: %w", req.Username, err, crawler.ErrParsingFailed)
	}
	return rec, nil
}

// PageURL builds the leaderboard page URL.
func (f *Fetcher) PageURL(req crawler.PageRequest) (string, error) {
	if !req.Category.Ranked() {
		return "", fmt.Errorf("category %s has no leaderboard", req.Category.Name)
	}
	categoryType := "0"
	if req.Category.IsMisc() {
		categoryType = "1"
	}
	q := url.Values{}
	q.Set("category_type", categoryType)
	q.Set("table", strconv.Itoa(req.Category.Table))
	q.Set("page", strconv.Itoa(req.Page))
	return fmt.Sprintf("%s/m=%s/overall?%s", f.cfg.BaseURL, req.Account, q.Encode()), nil
}

// UserURL builds the player lookup URL.
func (f *Fetcher) UserURL(req crawler.UserRequest) string {
	q := url.Values{}
	q.Set("player", req.Username)
	return fmt.Sprintf("%s/m=%s/index_lite.ws?%s", f.cfg.BaseURL, req.Account, q.Encode())
}

func (f *Fetcher) get(ctx context.Context, kind, rawURL string) ([]byte, error) {
	ctx, span := f.tracer.Start(ctx, "hiscores."+kind, trace.WithAttributes(attribute.String("url", rawURL)))
	defer span.End()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	var (
		resp     response
		fetchErr error
	)
	collector := f.buildCollector(&resp, &fetchErr)
	err := f.runCollector(ctx, collector, rawURL, &fetchErr)
	if err == nil {
		err = classify(resp)
	}
	metrics.ObserveFetch(kind, crawler.ErrorKind(err), time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, crawler.ErrorKind(err))
		f.logger.Debug("fetch failed", zap.String("url", rawURL), zap.Int("status", resp.status), zap.Error(err))
		return nil, err
	}
	return resp.body, nil
}

func (f *Fetcher) buildCollector(resp *response, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	} else {
		extensions.RandomUserAgent(collector)
	}
	f.configureCollectorHooks(collector, resp, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, resp *response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*resp = response{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			resp.status = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		if err != nil {
			return transportError(err)
		}
		return nil
	}
}

// transportError maps a failed visit to a failure kind.
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", crawler.ErrServerBusy, err)
	}
	return fmt.Errorf("%w: %v", crawler.ErrRequestFailed, err)
}

// classify maps a completed response to a failure kind, nil for a usable
// body.
func classify(resp response) error {
	if bytes.Contains(resp.body, []byte("temporarily blocked")) && isRateLimited(resp.body) {
		return crawler.ErrRateLimited
	}
	switch {
	case resp.status == http.StatusNotFound:
		return crawler.ErrNotFound
	case resp.status != http.StatusOK:
		return fmt.Errorf("status %d: %w", resp.status, crawler.ErrRequestFailed)
	}
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
