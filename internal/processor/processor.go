package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/fogleman/gg"
	"github.com/gabriel-vasile/mimetype"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/image/font/basicfont"
)

// Mode selects how a source image is fitted into the target frame.
type Mode string

const (
	// ModeCover resizes and crops the image to fill the whole frame.
	ModeCover Mode = "cover"
	// ModeCropPad fills the top part of the frame with the image and pads
	// the rest with black.
	ModeCropPad Mode = "crop-pad"
	// ModeContain letterboxes the whole image on a black background.
	ModeContain Mode = "contain"
)

var (
	// ErrFetch wraps download failures.
	ErrFetch = errors.New("image fetch failed")
	// ErrNotImage is returned when the downloaded payload is not an image.
	ErrNotImage = errors.New("payload is not an image")
	// ErrTransform wraps decode, resize and encode failures.
	ErrTransform = errors.New("image transform failed")
)

// ParseMode validates a configured transform mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeCover, ModeCropPad, ModeContain:
		return m, nil
	case "":
		return ModeCover, nil
	default:
		return "", fmt.Errorf("unknown transform mode: %s", s)
	}
}

// Options configure the target frame and output encoding.
type Options struct {
	Mode        Mode
	Width       int
	Height      int
	CropRatio   float64 // share of the frame height used by the image in crop-pad mode
	JPEGQuality int
	MaxBytes    int64  // download size limit
	Watermark   string // drawn bottom-right when not empty
	FontPath    string // TTF used for the watermark; a bitmap face is used when empty
}

// Processor downloads generated images and turns them into gallery-ready JPEGs.
type Processor struct {
	httpClient *http.Client
	strategy   retry.Strategy
	opts       Options
}

// New creates a new Processor. Missing options fall back to a 1920x1080
// cover frame at JPEG quality 90.
func New(opts Options, s retry.Strategy) *Processor {
	if opts.Mode == "" {
		opts.Mode = ModeCover
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1920, 1080
	}
	if opts.CropRatio <= 0 || opts.CropRatio > 1 {
		opts.CropRatio = 0.7
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 90
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 32 << 20
	}
	if s.Attempts < 1 {
		s.Attempts = 1
	}

	return &Processor{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		strategy:   s,
		opts:       opts,
	}
}

// Fetch downloads the image at url into memory. Transport errors and 5xx
// responses are retried with the processor's strategy.
func (p *Processor) Fetch(ctx context.Context, url string) ([]byte, error) {
	var (
		data      []byte
		permanent error
	)

	err := retry.Do(func() error {
		d, retryable, err := p.download(ctx, url)
		if err != nil && !retryable {
			permanent = err
			return nil
		}
		data = d
		return err
	}, p.strategy)
	if permanent != nil {
		return nil, permanent
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, fmt.Errorf("%w: %w: detected %s", ErrFetch, ErrNotImage, mime.String())
	}

	zlog.Logger.Info().
		Str("url", url).
		Str("mime", mime.String()).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Msg("downloaded generated image")

	return data, nil
}

// download performs a single GET and reports whether a failure is worth retrying.
func (p *Processor) download(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: create request: %v", ErrFetch, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: download returned status %d", ErrFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.opts.MaxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > p.opts.MaxBytes {
		return nil, false, fmt.Errorf("%w: image exceeds %s", ErrFetch, humanize.Bytes(uint64(p.opts.MaxBytes)))
	}

	return data, false, nil
}

// Transform decodes data, fits it into the configured frame, applies the
// watermark and encodes the result as JPEG.
func (p *Processor) Transform(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrTransform, err)
	}

	var dst image.Image
	switch p.opts.Mode {
	case ModeCover:
		dst = p.cover(src)
	case ModeCropPad:
		dst = p.cropPad(src)
	case ModeContain:
		dst = p.contain(src)
	default:
		return nil, fmt.Errorf("%w: unknown mode %s", ErrTransform, p.opts.Mode)
	}

	if p.opts.Watermark != "" {
		dst, err = p.watermark(dst)
		if err != nil {
			return nil, err
		}
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, dst, imaging.JPEG, imaging.JPEGQuality(p.opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrTransform, err)
	}

	return buf.Bytes(), nil
}

// cover resizes and center-crops the image to fill the frame.
func (p *Processor) cover(src image.Image) image.Image {
	return imaging.Fill(src, p.opts.Width, p.opts.Height, imaging.Center, imaging.Lanczos)
}

// cropPad fills the top CropRatio of the frame and leaves the bottom black.
func (p *Processor) cropPad(src image.Image) image.Image {
	top := int(float64(p.opts.Height) * p.opts.CropRatio)
	if top < 1 {
		top = 1
	}

	fitted := imaging.Fill(src, p.opts.Width, top, imaging.Top, imaging.Lanczos)
	canvas := imaging.New(p.opts.Width, p.opts.Height, color.Black)

	return imaging.Paste(canvas, fitted, image.Pt(0, 0))
}

// contain letterboxes the image, centered on a black frame.
func (p *Processor) contain(src image.Image) image.Image {
	fitted := imaging.Fit(src, p.opts.Width, p.opts.Height, imaging.Lanczos)
	canvas := imaging.New(p.opts.Width, p.opts.Height, color.Black)

	return imaging.PasteCenter(canvas, fitted)
}

// watermark draws the watermark text in the bottom-right corner.
func (p *Processor) watermark(img image.Image) (image.Image, error) {
	dc := gg.NewContextForImage(img)
	dc.SetColor(color.White)

	if p.opts.FontPath != "" {
		fontSize := float64(dc.Width()) * 0.03 // 3% of the image width
		if err := dc.LoadFontFace(p.opts.FontPath, fontSize); err != nil {
			return nil, fmt.Errorf("%w: load font: %v", ErrTransform, err)
		}
	} else {
		dc.SetFontFace(basicfont.Face7x13)
	}

	margin := 10.0
	dc.DrawStringAnchored(p.opts.Watermark, float64(dc.Width())-margin, float64(dc.Height())-margin, 1, 0)

	return dc.Image(), nil
}
