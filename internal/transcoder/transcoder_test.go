package transcoder

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
	"testing"
	"time"

	"github.com/franela/goblin"
	"go.uber.org/zap"

	"image_batch/internal/models"
)

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: uint8((x + y) % 255), A: 255})
		}
	}
	return img
}

func encodedJPEG(t *testing.T) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodedPNG(t *testing.T) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, jpegData, pngData []byte) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/photo.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegData)
	})
	mux.HandleFunc("/photo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngData)
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("definitely not an image"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTranscoder(cfg models.ProcessingConfig) *Transcoder {
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	return New(cfg, zap.NewNop())
}

func TestTranscoder(t *testing.T) {
	g := goblin.Goblin(t)
	jpegData := encodedJPEG(t)
	pngData := encodedPNG(t)
	srv := newTestServer(t, jpegData, pngData)
	ctx := context.Background()

	g.Describe("Transcoder", func() {
		g.Describe("Transcode", func() {
			g.It("Should re-encode a JPEG as a smaller JPEG", func() {
				out, err := newTranscoder(models.ProcessingConfig{}).Transcode(ctx, srv.URL+"/photo.jpg", 50)

				g.Assert(err).IsNil()
				_, format, decodeErr := image.DecodeConfig(bytes.NewReader(out))
				g.Assert(decodeErr).IsNil()
				g.Assert(format).Equal("jpeg")
				g.Assert(len(out) < len(jpegData)).IsTrue()
			})

			g.It("Should preserve the PNG format", func() {
				out, err := newTranscoder(models.ProcessingConfig{}).Transcode(ctx, srv.URL+"/photo.png", 30)

				g.Assert(err).IsNil()
				cfg, format, decodeErr := image.DecodeConfig(bytes.NewReader(out))
				g.Assert(decodeErr).IsNil()
				g.Assert(format).Equal("png")
				g.Assert(cfg.Width).Equal(64)
				g.Assert(cfg.Height).Equal(48)
			})

			g.It("Should return fetch error on non-2xx response", func() {
				_, err := newTranscoder(models.ProcessingConfig{}).Transcode(ctx, srv.URL+"/missing.jpg", 50)

				g.Assert(errors.Is(err, ErrFetch)).IsTrue()
			})

			g.It("Should return decode error on a body that is not an image", func() {
				_, err := newTranscoder(models.ProcessingConfig{}).Transcode(ctx, srv.URL+"/text", 50)

				g.Assert(errors.Is(err, ErrDecode)).IsTrue()
			})

			g.It("Should return fetch error when the fetch exceeds the timeout", func() {
				tr := newTranscoder(models.ProcessingConfig{FetchTimeout: 100 * time.Millisecond})
				_, err := tr.Transcode(ctx, srv.URL+"/slow", 50)

				g.Assert(errors.Is(err, ErrFetch)).IsTrue()
			})

			g.It("Should return fetch error when the body is larger than the limit", func() {
				tr := newTranscoder(models.ProcessingConfig{MaxImageBytes: 16})
				_, err := tr.Transcode(ctx, srv.URL+"/photo.jpg", 50)

				g.Assert(errors.Is(err, ErrFetch)).IsTrue()
			})

			g.It("Should reject hosts outside the allow list", func() {
				tr := newTranscoder(models.ProcessingConfig{AllowedHosts: []string{"*.example.com"}})
				_, err := tr.Transcode(ctx, srv.URL+"/photo.jpg", 50)

				g.Assert(errors.Is(err, ErrFetch)).IsTrue()
			})

			g.It("Should reject non-http urls", func() {
				_, err := newTranscoder(models.ProcessingConfig{}).Transcode(ctx, "file:///etc/passwd", 50)

				g.Assert(errors.Is(err, ErrFetch)).IsTrue()
			})
		})
	})
}
