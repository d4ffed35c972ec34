package imageproxy

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func dims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestProcessResizes(t *testing.T) {
	data := pngBytes(t, 800, 400)

	tests := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{"no constraints", 0, 0, 800, 400},
		{"width keeps aspect", 600, 0, 600, 300},
		{"height keeps aspect", 0, 100, 200, 100},
		{"cover crops", 300, 300, 300, 300},
		{"never enlarges", 1600, 0, 800, 400},
		{"cover never enlarges", 1000, 1000, 400, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Process(data, tt.w, tt.h, 80)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, img.Width)
			assert.Equal(t, tt.wantH, img.Height)

			w, h := dims(t, img.Data)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
			assert.NotEmpty(t, img.ETag)
		})
	}
}

func TestProcessRejectsGarbage(t *testing.T) {
	_, err := Process([]byte("not an image"), 100, 0, 75)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Process(nil, 100, 0, 75)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

// gifHeader is a bare GIF screen descriptor claiming w x h pixels
func gifHeader(w, h int) []byte {
	b := []byte("GIF89a")
	b = append(b, byte(w), byte(w>>8), byte(h), byte(h>>8), 0, 0, 0)
	return append(b, 0x3b)
}

func TestProcessRejectsHugeDimensions(t *testing.T) {
	_, err := Process(gifHeader(30000, 30000), 0, 0, 75)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}

func TestClampQuality(t *testing.T) {
	assert.Equal(t, 75, ClampQuality(0))
	assert.Equal(t, 10, ClampQuality(3))
	assert.Equal(t, 100, ClampQuality(400))
	assert.Equal(t, 55, ClampQuality(55))
}

func TestParseRequest(t *testing.T) {
	req := ParseRequest(" https://cdn.hashnode.com/a.png ", "640", "abc", "")
	assert.Equal(t, Request{URL: "https://cdn.hashnode.com/a.png", Width: 640, Height: 0, Quality: 75}, req)
}

type upstream struct {
	hits        atomic.Int32
	status      int
	contentType string
	body        []byte
	delay       time.Duration
	userAgent   atomic.Value
}

func (u *upstream) serve(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.userAgent.Store(r.UserAgent())
		if u.delay > 0 {
			time.Sleep(u.delay)
		}
		w.Header().Set("Content-Type", u.contentType)
		w.WriteHeader(u.status)
		_, _ = w.Write(u.body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func errStatus(t *testing.T, err error) int {
	t.Helper()
	var pe *Error
	require.True(t, errors.As(err, &pe), "expected *Error, got %v", err)
	return pe.Status
}

func TestGetRejectsBeforeFetching(t *testing.T) {
	up := &upstream{status: http.StatusOK, contentType: "image/png", body: pngBytes(t, 10, 10)}
	srv := up.serve(t)
	p := New(Options{AllowedHost: "cdn.hashnode.com"})

	_, err := p.Get(context.Background(), Request{URL: srv.URL + "/a.png"})
	assert.Equal(t, http.StatusForbidden, errStatus(t, err))

	_, err = p.Get(context.Background(), Request{})
	assert.Equal(t, http.StatusBadRequest, errStatus(t, err))

	_, err = p.Get(context.Background(), Request{URL: "::not a url"})
	assert.Equal(t, http.StatusBadRequest, errStatus(t, err))

	assert.Zero(t, up.hits.Load())
}

func TestGetProcessesAndCaches(t *testing.T) {
	up := &upstream{status: http.StatusOK, contentType: "image/png", body: pngBytes(t, 800, 400)}
	srv := up.serve(t)
	p := New(Options{AllowedHost: "127.0.0.1"})

	req := Request{URL: srv.URL + "/cover.png", Width: 400, Quality: 75}
	img, err := p.Get(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Width)
	assert.Equal(t, 200, img.Height)
	assert.Equal(t, "Blog-ImageOptimizer/1.0", up.userAgent.Load())

	again, err := p.Get(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, img, again)
	assert.EqualValues(t, 1, up.hits.Load())

	req.Width = 200
	_, err = p.Get(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 2, up.hits.Load(), "different size is a different cache entry")
}

func TestGetUpstreamFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        []byte
		want        int
	}{
		{"upstream 5xx", http.StatusServiceUnavailable, "text/plain", nil, http.StatusBadGateway},
		{"upstream 404", http.StatusNotFound, "text/plain", nil, http.StatusNotFound},
		{"not an image", http.StatusOK, "text/html", []byte("<html></html>"), http.StatusBadRequest},
		{"corrupt image", http.StatusOK, "image/png", []byte("garbage"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &upstream{status: tt.status, contentType: tt.contentType, body: tt.body}
			srv := up.serve(t)
			p := New(Options{AllowedHost: "127.0.0.1"})

			_, err := p.Get(context.Background(), Request{URL: srv.URL + "/x"})
			assert.Equal(t, tt.want, errStatus(t, err))
		})
	}
}

func TestGetTimeout(t *testing.T) {
	up := &upstream{status: http.StatusOK, contentType: "image/png", body: pngBytes(t, 10, 10), delay: 300 * time.Millisecond}
	srv := up.serve(t)
	p := New(Options{AllowedHost: "127.0.0.1", Timeout: 50 * time.Millisecond})

	_, err := p.Get(context.Background(), Request{URL: srv.URL + "/slow.png"})
	assert.Equal(t, http.StatusGatewayTimeout, errStatus(t, err))
}

func TestGetRefusesOversizedImages(t *testing.T) {
	t.Run("body over the byte limit", func(t *testing.T) {
		up := &upstream{status: http.StatusOK, contentType: "image/png", body: bytes.Repeat([]byte{0xff}, 4096)}
		srv := up.serve(t)
		p := New(Options{AllowedHost: "127.0.0.1", MaxBytes: 1024})

		_, err := p.Get(context.Background(), Request{URL: srv.URL + "/big.png"})
		assert.Equal(t, http.StatusRequestEntityTooLarge, errStatus(t, err))
	})

	t.Run("body over the limit without a length", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			for i := 0; i < 8; i++ {
				_, _ = w.Write(bytes.Repeat([]byte{0xff}, 512))
				w.(http.Flusher).Flush()
			}
		}))
		t.Cleanup(srv.Close)
		p := New(Options{AllowedHost: "127.0.0.1", MaxBytes: 1024})

		_, err := p.Get(context.Background(), Request{URL: srv.URL + "/chunked.png"})
		assert.Equal(t, http.StatusRequestEntityTooLarge, errStatus(t, err))
	})

	t.Run("header over the pixel budget", func(t *testing.T) {
		up := &upstream{status: http.StatusOK, contentType: "image/gif", body: gifHeader(30000, 30000)}
		srv := up.serve(t)
		p := New(Options{AllowedHost: "127.0.0.1"})

		_, err := p.Get(context.Background(), Request{URL: srv.URL + "/huge.gif"})
		assert.Equal(t, http.StatusRequestEntityTooLarge, errStatus(t, err))
		assert.ErrorIs(t, err, ErrTooLarge)
	})
}
