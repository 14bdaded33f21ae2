package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"

	"github.com/disintegration/imaging"
	"github.com/ryanuber/go-glob"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"image_batch/internal/models"
)

var (
	ErrFetch  = errors.New("image fetch failed")
	ErrDecode = errors.New("image decode failed")
)

type Transcoder struct {
	client       *http.Client
	allowedHosts []string
	maxBytes     int64
	log          *zap.Logger
}

func New(cfg models.ProcessingConfig, log *zap.Logger) *Transcoder {
	return &Transcoder{
		client:       &http.Client{Timeout: cfg.FetchTimeout},
		allowedHosts: cfg.AllowedHosts,
		maxBytes:     cfg.MaxImageBytes,
		log:          log,
	}
}

// Transcode downloads the image at rawURL and re-encodes it in its original
// format at the given quality. Formats without an encoder come back as JPEG.
func (t *Transcoder) Transcode(ctx context.Context, rawURL string, quality int) ([]byte, error) {
	data, err := t.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	outFormat, err := imaging.FormatFromExtension(format)
	if err != nil {
		outFormat = imaging.JPEG
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, outFormat, encodeOptions(outFormat, quality)...); err != nil {
		return nil, fmt.Errorf("encode %s: %w", outFormat, err)
	}

	t.log.Debug("Image compressed",
		zap.String("url", rawURL),
		zap.String("format", format),
		zap.Int("quality", quality),
		zap.Int("input_size", len(data)),
		zap.Int("output_size", buf.Len()))

	return buf.Bytes(), nil
}

func (t *Transcoder) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrFetch, rawURL)
	}
	if !t.hostAllowed(u.Hostname()) {
		return nil, fmt.Errorf("%w: host %s is not allowed", ErrFetch, u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if t.maxBytes > 0 {
		body = io.LimitReader(resp.Body, t.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if t.maxBytes > 0 && int64(len(data)) > t.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrFetch, t.maxBytes)
	}
	return data, nil
}

func (t *Transcoder) hostAllowed(host string) bool {
	if len(t.allowedHosts) == 0 {
		return true
	}
	for _, pattern := range t.allowedHosts {
		if glob.Glob(pattern, host) {
			return true
		}
	}
	return false
}

func encodeOptions(format imaging.Format, quality int) []imaging.EncodeOption {
	switch format {
	case imaging.JPEG:
		return []imaging.EncodeOption{imaging.JPEGQuality(quality)}
	case imaging.PNG:
		level := png.DefaultCompression
		if quality < 50 {
			level = png.BestCompression
		}
		return []imaging.EncodeOption{imaging.PNGCompressionLevel(level)}
	default:
		return nil
	}
}
