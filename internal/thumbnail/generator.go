package thumbnail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os/exec"
	"path/filepath"
	"time"

	"media-browser/internal/filesystem"
	"media-browser/internal/logging"
	"media-browser/internal/mediatypes"
	"media-browser/internal/metrics"

	_ "image/gif"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// GeneratorConfig configures thumbnail generation.
type GeneratorConfig struct {
	// VideoTimeout is the hard per-job bound on video frame extraction.
	VideoTimeout time.Duration

	// UseVips enables the libvips decode path for images when available.
	UseVips bool
}

// DefaultGeneratorConfig returns the standard generation settings.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		VideoTimeout: 10 * time.Second,
		UseVips:      true,
	}
}

// Generator produces encoded thumbnail payloads for single files.
//
// Generate never fails: unsupported, missing, or corrupt sources all
// degrade to a synthesized placeholder, so callers can treat the result
// as unconditionally renderable.
type Generator struct {
	videoTimeout time.Duration
	useVips      bool
	ffmpegPath   string
	retry        filesystem.RetryConfig
}

// NewGenerator creates a Generator. ffmpeg is located once at
// construction; when absent, video thumbnails degrade to placeholders.
func NewGenerator(config GeneratorConfig) *Generator {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		logging.Warn("ffmpeg not found, video thumbnails will be placeholders: %v", err)
		ffmpegPath = ""
	} else {
		logging.Debug("Using ffmpeg: %s", ffmpegPath)
	}

	timeout := config.VideoTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Generator{
		videoTimeout: timeout,
		useVips:      config.UseVips,
		ffmpegPath:   ffmpegPath,
		retry:        filesystem.DefaultRetryConfig(),
	}
}

// Generate produces an encoded thumbnail payload for path.
func (g *Generator) Generate(ctx context.Context, path string, req Request) string {
	req = req.Normalize()
	kind := mediatypes.FileTypeForPath(path)
	name := filepath.Base(path)
	start := time.Now()

	var img image.Image
	var err error

	switch kind {
	case mediatypes.FileTypeImage:
		img, err = g.loadImage(ctx, path, req)
	case mediatypes.FileTypeVideo:
		img, err = g.extractVideoFrame(ctx, path, req.TimeOffset)
	default:
		// Unsupported extension: no decode attempted.
		metrics.GenerationDuration.WithLabelValues("placeholder").Observe(time.Since(start).Seconds())
		metrics.GenerationResults.WithLabelValues(string(kind), "placeholder").Inc()
		return Placeholder(name, kind, req.Width, req.Height)
	}

	if err == nil && img != nil {
		thumb := imaging.Fill(img, req.Width, req.Height, imaging.Center, imaging.Lanczos)
		payload, encErr := encodePayload(thumb, req)
		if encErr == nil {
			metrics.GenerationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
			metrics.GenerationResults.WithLabelValues(string(kind), "ok").Inc()
			return payload
		}
		err = encErr
	}

	logging.Debug("Thumbnail generation for %s degraded to placeholder: %v", path, err)
	metrics.GenerationDuration.WithLabelValues("placeholder").Observe(time.Since(start).Seconds())
	metrics.GenerationResults.WithLabelValues(string(kind), "placeholder").Inc()
	return Placeholder(name, kind, req.Width, req.Height)
}

// loadImage decodes an image through a chain of strategies: libvips
// (decode-time shrink), then imaging with auto-orientation, then the
// stdlib decoders, and finally an ffmpeg pipe for formats none of the
// in-process decoders understand.
func (g *Generator) loadImage(ctx context.Context, path string, req Request) (image.Image, error) {
	if g.useVips {
		img, err := loadImageWithVips(path, req.Width, req.Height)
		if err == nil {
			return img, nil
		}
		logging.Debug("vips decode failed for %s: %v, trying imaging", path, err)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	logging.Debug("imaging.Open failed for %s: %v, trying stdlib decode", path, err)

	img, err = g.decodeImageFile(path)
	if err == nil {
		return img, nil
	}
	logging.Debug("Standard decode failed for %s: %v, trying ffmpeg", path, err)

	img, err = g.decodeImageWithFFmpeg(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("all image decode methods failed for %s: %w", path, err)
	}
	return img, nil
}

func (g *Generator) decodeImageFile(path string) (image.Image, error) {
	file, err := filesystem.Open(path, g.retry)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, err
	}

	logging.Debug("Decoded image format %s for %s", format, path)
	return img, nil
}

func (g *Generator) decodeImageWithFFmpeg(ctx context.Context, path string) (image.Image, error) {
	if g.ffmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg not available")
	}

	ctx, cancel := context.WithTimeout(ctx, g.videoTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.ffmpegPath,
		"-i", path,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-pix_fmt", "rgb24",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", path)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

// extractVideoFrame extracts a single frame at the requested offset under
// a hard timeout. If the seek fails (short clips, broken indexes) it
// retries without one, taking the first decodable frame instead.
func (g *Generator) extractVideoFrame(ctx context.Context, path string, offset time.Duration) (image.Image, error) {
	if g.ffmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg not available")
	}

	ctx, cancel := context.WithTimeout(ctx, g.videoTimeout)
	defer cancel()

	seek := fmt.Sprintf("%.3f", offset.Seconds())
	out, err := g.runFFmpeg(ctx,
		"-i", path,
		"-ss", seek,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		logging.Debug("ffmpeg seek extraction failed for %s: %v, retrying without seek", path, err)
		out, err = g.runFFmpeg(ctx,
			"-i", path,
			"-vframes", "1",
			"-f", "image2pipe",
			"-vcodec", "png",
			"-",
		)
		if err != nil {
			return nil, err
		}
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

func (g *Generator) runFFmpeg(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, g.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}
	return stdout.Bytes(), nil
}

// encodePayload encodes img per the request's format and quality into a
// base64 data URL.
func encodePayload(img image.Image, req Request) (string, error) {
	var buf bytes.Buffer
	var mime string

	switch req.Format {
	case "png":
		mime = "image/png"
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("failed to encode png: %w", err)
		}
	default:
		mime = "image/jpeg"
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: req.Quality}); err != nil {
			return "", fmt.Errorf("failed to encode jpeg: %w", err)
		}
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
