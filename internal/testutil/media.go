package testutil

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"time"
)

type fataler interface {
	Helper()
	Fatalf(string, ...any)
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t fataler, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// TinyJPEG returns a solid-color JPEG with the requested dimensions.
func TinyJPEG(t fataler, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// MP4Header is enough of an ISO BMFF ftyp box to sniff as video/mp4.
func MP4Header() []byte {
	box := make([]byte, 24)
	binary.BigEndian.PutUint32(box[:4], 24)
	copy(box[4:8], "ftyp")
	copy(box[8:12], "isom")
	copy(box[16:20], "isom")
	copy(box[20:24], "mp41")
	return append(box, bytes.Repeat([]byte{0}, 64)...)
}

// MPEGHeader starts with an MPEG program stream pack header.
func MPEGHeader() []byte {
	return append([]byte{0x00, 0x00, 0x01, 0xBA, 0x44, 0x00, 0x04, 0x00}, bytes.Repeat([]byte{0}, 64)...)
}

// StubProber reports a fixed duration, or Err when set.
type StubProber struct {
	Duration time.Duration
	Err      error
	Calls    int
}

// ProbeDuration satisfies service.VideoProber.
func (p *StubProber) ProbeDuration(_ context.Context, _ string) (time.Duration, error) {
	p.Calls++
	if p.Err != nil {
		return 0, p.Err
	}
	return p.Duration, nil
}
