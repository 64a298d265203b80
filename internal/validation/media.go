package validation

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MediaContext is where an upload will be attached; it picks the allow-list and duration ceiling.
type MediaContext string

const (
	MediaForFeed   MediaContext = "feed"
	MediaForReels  MediaContext = "reels"
	MediaForAvatar MediaContext = "avatar"
)

const (
	FeedVideoMaxDuration  = 60 * time.Second
	ReelsVideoMaxDuration = 90 * time.Second
)

var allowedMIME = map[MediaContext]map[string]bool{
	MediaForFeed: {
		"image/jpeg": true,
		"image/png":  true,
		"video/mp4":  true,
		"video/mpeg": true,
	},
	MediaForReels: {
		"video/mp4":  true,
		"video/mpeg": true,
	},
	MediaForAvatar: {
		"image/jpeg": true,
		"image/png":  true,
	},
}

// MPEG program stream pack header and elementary stream sequence header.
// net/http does not sniff either.
var (
	mpegPackHeader     = []byte{0x00, 0x00, 0x01, 0xBA}
	mpegSequenceHeader = []byte{0x00, 0x00, 0x01, 0xB3}
)

// DetectMIME sniffs content and strips parameters ("; charset=...").
func DetectMIME(content []byte) string {
	if bytes.HasPrefix(content, mpegPackHeader) || bytes.HasPrefix(content, mpegSequenceHeader) {
		return "video/mpeg"
	}
	detected := http.DetectContentType(content)
	if i := strings.Index(detected, ";"); i >= 0 {
		detected = detected[:i]
	}
	return strings.TrimSpace(strings.ToLower(detected))
}

// CheckMIME returns the sniffed type if it is allowed for ctx.
func CheckMIME(ctx MediaContext, content []byte) (string, error) {
	mimeType := DetectMIME(content)
	if !allowedMIME[ctx][mimeType] {
		return "", fmt.Errorf("Unsupported file type: %s", mimeType)
	}
	return mimeType, nil
}

// IsVideoMIME reports whether mimeType is one of the accepted video types.
func IsVideoMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}

// MaxVideoDuration is the duration ceiling for ctx.
func MaxVideoDuration(ctx MediaContext) time.Duration {
	if ctx == MediaForReels {
		return ReelsVideoMaxDuration
	}
	return FeedVideoMaxDuration
}

// CheckVideoDuration rejects videos longer than the ceiling for ctx.
func CheckVideoDuration(ctx MediaContext, d time.Duration) error {
	limit := MaxVideoDuration(ctx)
	if d > limit {
		return fmt.Errorf("Video length should not exceed %d seconds.", int(limit.Seconds()))
	}
	return nil
}
