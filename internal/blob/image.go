package blob

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"net/http"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// ErrUnsupportedImage is returned for payloads that are not a decodable
// JPEG, PNG, GIF or WebP image.
var ErrUnsupportedImage = errors.New("unsupported image")

// Normalizer re-encodes uploads as WebP, bounded to MaxSize on the longest
// side. Square crops to the centered square first (avatars).
type Normalizer struct {
	MaxSize int
	Square  bool
	Quality int
}

var (
	AvatarNormalizer = Normalizer{MaxSize: 512, Square: true, Quality: 80}
	PostNormalizer   = Normalizer{MaxSize: 1080, Quality: 82}
)

// Normalize decodes data, crops/resizes it and returns a WebP object body.
func (n Normalizer) Normalize(data []byte) (Object, error) {
	if !isAllowedImageMIME(http.DetectContentType(data)) {
		return Object{}, ErrUnsupportedImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Object{}, ErrUnsupportedImage
	}

	if n.Square {
		img = cropCenterSquare(img)
	}
	img = resizeToFit(img, n.MaxSize, n.MaxSize)

	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(n.Quality)}); err != nil {
		return Object{}, err
	}
	return Object{Ext: ".webp", ContentType: "image/webp", Data: buf.Bytes()}, nil
}

func isAllowedImageMIME(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func cropCenterSquare(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h || w <= 0 || h <= 0 {
		return src
	}
	side := w
	if h < side {
		side = h
	}
	x := b.Min.X + (w-side)/2
	y := b.Min.Y + (h-side)/2
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), src, image.Point{X: x, Y: y}, draw.Src)
	return dst
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 || maxWidth <= 0 || maxHeight <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := float64(maxWidth) / float64(w)
	if s := float64(maxHeight) / float64(h); s < scale {
		scale = s
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
