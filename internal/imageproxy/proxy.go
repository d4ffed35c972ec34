// Package imageproxy resizes and recompresses images from the publication's CDN.
package imageproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bilgisen/kafkaesque/internal/logger"
	"github.com/bilgisen/kafkaesque/internal/metrics"
	"github.com/bilgisen/kafkaesque/internal/utils"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// Error is a failure with the HTTP status it should be answered with
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(status int, msg string, err error) *Error {
	return &Error{Status: status, Message: msg, Err: err}
}

// Request describes one proxied image
type Request struct {
	URL     string
	Width   int
	Height  int
	Quality int
}

// ParseRequest reads the url, w, h and q query values. Unparsable sizes are ignored.
func ParseRequest(rawURL, w, h, q string) Request {
	return Request{
		URL:     strings.TrimSpace(rawURL),
		Width:   atoi(w),
		Height:  atoi(h),
		Quality: ClampQuality(atoi(q)),
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func (r Request) key() string {
	return utils.HashParts(r.URL, strconv.Itoa(r.Width), strconv.Itoa(r.Height), strconv.Itoa(r.Quality))
}

// Options configures a Proxy
type Options struct {
	AllowedHost string
	Timeout     time.Duration
	UserAgent   string
	CacheSize   int
	CacheTTL    time.Duration
	// MaxBytes caps the upstream body; larger images are refused
	MaxBytes int64
}

// DefaultMaxBytes is the upstream body limit when Options.MaxBytes is unset
const DefaultMaxBytes = 20 << 20

// Proxy fetches images from a single trusted host and serves processed copies
type Proxy struct {
	client      *resty.Client
	allowedHost string
	cache       *expirable.LRU[string, *Image]
	maxBytes    int64
	log         zerolog.Logger
}

func New(opts Options) *Proxy {
	if opts.AllowedHost == "" {
		opts.AllowedHost = "cdn.hashnode.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Blog-ImageOptimizer/1.0"
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "image/*")

	return &Proxy{
		client:      client,
		allowedHost: strings.ToLower(opts.AllowedHost),
		cache:       expirable.NewLRU[string, *Image](opts.CacheSize, nil, opts.CacheTTL),
		maxBytes:    opts.MaxBytes,
		log:         logger.Component("imageproxy"),
	}
}

// Get returns the processed image for req. Failures are *Error.
func (p *Proxy) Get(ctx context.Context, req Request) (*Image, error) {
	target, err := p.check(req.URL)
	if err != nil {
		metrics.RecordImage("rejected")
		return nil, err
	}

	key := req.key()
	if img, ok := p.cache.Get(key); ok {
		metrics.RecordImage("cache_hit")
		return img, nil
	}

	data, err := p.fetch(ctx, target)
	if err != nil {
		metrics.RecordImage("fetch_error")
		return nil, err
	}

	img, err := Process(data, req.Width, req.Height, req.Quality)
	if err != nil {
		metrics.RecordImage("process_error")
		p.log.Error().Err(err).Str("url", req.URL).Msg("Image processing failed")
		if errors.Is(err, ErrTooLarge) {
			return nil, fail(http.StatusRequestEntityTooLarge, "Image too large", err)
		}
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil, fail(http.StatusBadRequest, "Unsupported or invalid image format", err)
		}
		return nil, fail(http.StatusInternalServerError, "Failed to process image", err)
	}

	p.cache.Add(key, img)
	metrics.RecordImage("processed")
	p.log.Debug().
		Str("url", req.URL).
		Int("width", img.Width).
		Int("height", img.Height).
		Int("quality", req.Quality).
		Int("bytes", len(img.Data)).
		Msg("Image processed")

	return img, nil
}

// check validates the url without touching the network
func (p *Proxy) check(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fail(http.StatusBadRequest, "Missing image URL parameter", nil)
	}

	target, err := url.Parse(raw)
	if err != nil || target.Host == "" || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, fail(http.StatusBadRequest, "Invalid image URL parameter", err)
	}

	if strings.ToLower(target.Hostname()) != p.allowedHost {
		p.log.Warn().Str("host", target.Hostname()).Msg("Image proxy denied host")
		return nil, fail(http.StatusForbidden, "Image host not allowed", nil)
	}
	return target, nil
}

func (p *Proxy) fetch(ctx context.Context, target *url.URL) ([]byte, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(target.String())
	if err != nil {
		return nil, p.transportError(err, target)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		status := resp.StatusCode()
		p.log.Error().Int("status", status).Str("url", target.String()).Msg("Upstream image error")
		if status >= 500 {
			status = http.StatusBadGateway
		}
		return nil, fail(status, "Failed to fetch image: "+http.StatusText(resp.StatusCode()), nil)
	}

	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(strings.ToLower(ct), "image/") {
		p.log.Error().Str("content_type", ct).Str("url", target.String()).Msg("URL did not return an image")
		return nil, fail(http.StatusBadRequest, "URL is not an image", nil)
	}

	if resp.RawResponse.ContentLength > p.maxBytes {
		return nil, p.tooLarge(target, resp.RawResponse.ContentLength)
	}

	// one extra byte tells an exact fit from an overflow
	data, err := io.ReadAll(io.LimitReader(body, p.maxBytes+1))
	if err != nil {
		return nil, p.transportError(err, target)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, p.tooLarge(target, int64(len(data)))
	}
	return data, nil
}

func (p *Proxy) transportError(err error, target *url.URL) *Error {
	if isTimeout(err) {
		p.log.Error().Err(err).Str("url", target.String()).Msg("Image fetch timed out")
		return fail(http.StatusGatewayTimeout, "Timeout fetching the upstream image", err)
	}
	p.log.Error().Err(err).Str("url", target.String()).Msg("Image fetch failed")
	return fail(http.StatusBadGateway, "Failed to fetch image", err)
}

func (p *Proxy) tooLarge(target *url.URL, size int64) *Error {
	p.log.Warn().Int64("bytes", size).Int64("limit", p.maxBytes).Str("url", target.String()).Msg("Upstream image too large")
	return fail(http.StatusRequestEntityTooLarge, "Image too large", nil)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
