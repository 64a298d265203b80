package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register decoder
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/observability"
	"github.com/bearkuang/oristagram/internal/validation"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	xdraw "golang.org/x/image/draw"
)

const (
	DefaultMediaUploadDir       = "/tmp/oristagram/media"
	DefaultMediaMaxUploadSizeMB = 50
	DefaultMediaPublicBaseURL   = "/media"
	MasterMaxSize               = 1080
	JPEGQuality                 = 82
	WebPQuality                 = 70
)

const probeTimeout = 30 * time.Second

// Upload is one file from a multipart form.
type Upload struct {
	Filename string
	Content  []byte
}

// VideoProber reports the duration of a video file on disk.
type VideoProber interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// FFProbe runs ffprobe through ffmpeg-go.
type FFProbe struct{}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (FFProbe) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	timeout := probeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	raw, err := ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{})
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	var out ffprobeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}
	seconds, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// MediaService validates uploads and writes them under the upload dir.
type MediaService struct {
	uploadDir          string
	publicBaseURL      string
	maxUploadSizeBytes int64
	prober             VideoProber
}

// NewMediaService builds a MediaService. A nil prober skips the duration check.
func NewMediaService(cfg *config.Config, prober VideoProber) *MediaService {
	uploadDir := DefaultMediaUploadDir
	baseURL := DefaultMediaPublicBaseURL
	maxUploadSizeMB := DefaultMediaMaxUploadSizeMB

	if cfg != nil {
		if cfg.MediaUploadDir != "" {
			uploadDir = cfg.MediaUploadDir
		}
		if cfg.MediaPublicBaseURL != "" {
			baseURL = cfg.MediaPublicBaseURL
		}
		if cfg.MediaMaxUploadSizeMB > 0 {
			maxUploadSizeMB = cfg.MediaMaxUploadSizeMB
		}
	}

	return &MediaService{
		uploadDir:          uploadDir,
		publicBaseURL:      strings.TrimRight(baseURL, "/"),
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
		prober:             prober,
	}
}

// UploadDir is where files are written; the server serves it statically.
func (s *MediaService) UploadDir() string {
	return s.uploadDir
}

// Validate checks size and MIME type of every upload. Nothing is written.
func (s *MediaService) Validate(mctx validation.MediaContext, uploads []Upload) ([]string, error) {
	types := make([]string, len(uploads))
	for i, up := range uploads {
		if len(up.Content) == 0 {
			return nil, models.NewValidationError("The submitted file is empty.")
		}
		if int64(len(up.Content)) > s.maxUploadSizeBytes {
			return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
		}
		mimeType, err := validation.CheckMIME(mctx, up.Content)
		if err != nil {
			observability.MediaUploads.WithLabelValues(string(mctx), "rejected").Inc()
			return nil, models.NewValidationError(err.Error())
		}
		types[i] = mimeType
	}
	return types, nil
}

// Store validates all uploads first, then writes them. On any failure every
// file written so far is removed.
func (s *MediaService) Store(ctx context.Context, mctx validation.MediaContext, uploads []Upload) (_ []models.Media, err error) {
	ctx, end := observability.StartSpan(ctx, observability.OpMediaStore, observability.MediaContextAttr(string(mctx)))
	defer func() { end(err) }()

	types, err := s.Validate(mctx, uploads)
	if err != nil {
		return nil, err
	}

	stored := make([]models.Media, 0, len(uploads))
	for i, up := range uploads {
		var m *models.Media
		if validation.IsVideoMIME(types[i]) {
			m, err = s.storeVideo(ctx, mctx, types[i], up.Content)
		} else {
			m, err = s.storeImage(up.Content)
		}
		if err != nil {
			s.Remove(ctx, stored)
			observability.MediaUploads.WithLabelValues(string(mctx), "rejected").Inc()
			return nil, err
		}
		stored = append(stored, *m)
		observability.MediaUploads.WithLabelValues(string(mctx), "stored").Inc()
	}
	return stored, nil
}

// StoreAvatar stores a single image and returns its public URL.
func (s *MediaService) StoreAvatar(ctx context.Context, up Upload) (*models.Media, error) {
	media, err := s.Store(ctx, validation.MediaForAvatar, []Upload{up})
	if err != nil {
		return nil, err
	}
	return &media[0], nil
}

// Remove deletes the files behind media. Missing files are ignored.
func (s *MediaService) Remove(ctx context.Context, media []models.Media) {
	for _, m := range media {
		for _, path := range m.Files() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				middleware.Logger.WarnContext(ctx, "failed to remove media file",
					slog.String("path", path), slog.String("error", err.Error()))
			}
		}
	}
}

func (s *MediaService) storeImage(content []byte) (*models.Media, error) {
	decoded, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	master := resizeToFit(decoded, MasterMaxSize, MasterMaxSize)

	jpg, err := encodeJPEG(master, JPEGQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	variant, err := encodeWebP(master, WebPQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	name := newMediaName()
	jpgRel := filepath.ToSlash(filepath.Join("images", name+".jpg"))
	webpRel := filepath.ToSlash(filepath.Join("images", name+".webp"))
	jpgAbs := filepath.Join(s.uploadDir, jpgRel)
	webpAbs := filepath.Join(s.uploadDir, webpRel)

	if err := writeBytesToFile(jpgAbs, jpg); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := writeBytesToFile(webpAbs, variant); err != nil {
		cleanupFiles(jpgAbs)
		return nil, models.NewInternalError(err)
	}

	b := master.Bounds()
	return &models.Media{
		Kind:        models.MediaKindImage,
		MimeType:    "image/jpeg",
		Path:        jpgAbs,
		VariantPath: webpAbs,
		URL:         s.publicURL(jpgRel),
		VariantURL:  s.publicURL(webpRel),
		Width:       b.Dx(),
		Height:      b.Dy(),
		SizeBytes:   int64(len(jpg)),
	}, nil
}

// storeVideo writes the file as-is, then probes it. ffprobe needs a path.
func (s *MediaService) storeVideo(ctx context.Context, mctx validation.MediaContext, mimeType string, content []byte) (*models.Media, error) {
	rel := filepath.ToSlash(filepath.Join("videos", newMediaName()+videoExt(mimeType)))
	abs := filepath.Join(s.uploadDir, rel)
	if err := writeBytesToFile(abs, content); err != nil {
		return nil, models.NewInternalError(err)
	}

	var duration time.Duration
	if s.prober != nil {
		d, err := s.prober.ProbeDuration(ctx, abs)
		if err != nil {
			cleanupFiles(abs)
			middleware.Logger.WarnContext(ctx, "video probe failed", slog.String("error", err.Error()))
			return nil, models.NewValidationError("Unable to process video file.")
		}
		if err := validation.CheckVideoDuration(mctx, d); err != nil {
			cleanupFiles(abs)
			return nil, models.NewValidationError(err.Error())
		}
		duration = d
	} else {
		middleware.Logger.WarnContext(ctx, "video stored without a duration check",
			slog.String("context", string(mctx)),
			slog.String("path", rel),
		)
	}

	return &models.Media{
		Kind:            models.MediaKindVideo,
		MimeType:        mimeType,
		Path:            abs,
		URL:             s.publicURL(rel),
		DurationSeconds: duration.Seconds(),
		SizeBytes:       int64(len(content)),
	}, nil
}

func (s *MediaService) publicURL(rel string) string {
	return s.publicBaseURL + "/" + rel
}

func videoExt(mimeType string) string {
	if mimeType == "video/mpeg" {
		return ".mpg"
	}
	return ".mp4"
}

func newMediaName() string {
	return filepath.Join(time.Now().UTC().Format("2006/01"), uuid.NewString())
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeBytesToFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func cleanupFiles(paths ...string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
