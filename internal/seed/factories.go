package seed

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"shutter/internal/models"
	"shutter/internal/validation"
)

var (
	hashtags = []string{
		"photography", "travel", "sunset", "streetphoto", "portrait", "nature",
		"mountains", "ocean", "foodie", "coffee", "architecture", "filmphoto",
		"blackandwhite", "citylights", "wildlife", "macro", "roadtrip", "goldenhour",
	}

	// Public dominates so likes and comments have somewhere to land.
	visibilities = []string{"public", "public", "public", "public", "followers_only", "private"}
)

// username builds a unique, valid handle; i disambiguates collisions in the
// faker's vocabulary.
func (s *Seeder) username(i int) string {
	base := sanitize(s.faker.Username())
	if len(base) < validation.MinUsernameLength {
		base = "user"
	}
	suffix := fmt.Sprintf("_%d", i)
	if limit := validation.MaxUsernameLength - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	return base + suffix
}

// caption is a sentence followed by one to three hashtags and, sometimes, a
// mention of another seeded user.
func (s *Seeder) caption(users []*models.User) string {
	var b strings.Builder
	b.WriteString(s.faker.Sentence(s.faker.Number(5, 16)))

	n := s.faker.Number(1, 3)
	for _, i := range s.faker.Rand.Perm(len(hashtags))[:n] {
		b.WriteString(" #")
		b.WriteString(hashtags[i])
	}
	if len(users) > 1 && s.faker.Bool() {
		b.WriteString(" with @")
		b.WriteString(users[s.faker.Number(0, len(users)-1)].Username)
	}
	return b.String()
}

func (s *Seeder) visibility() string {
	return s.faker.RandomString(visibilities)
}

// image renders a small two-tone gradient PNG; the post pipeline re-encodes it.
func (s *Seeder) image() ([]byte, error) {
	const w, h = 96, 96
	from := color.RGBA{R: s.faker.Uint8(), G: s.faker.Uint8(), B: s.faker.Uint8(), A: 255}
	to := color.RGBA{R: s.faker.Uint8(), G: s.faker.Uint8(), B: s.faker.Uint8(), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := color.RGBA{
			R: lerp(from.R, to.R, y, h),
			G: lerp(from.G, to.G, y, h),
			B: lerp(from.B, to.B, y, h),
			A: 255,
		}
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode seed image: %w", err)
	}
	return buf.Bytes(), nil
}

func lerp(a, b uint8, i, n int) uint8 {
	return uint8(int(a) + (int(b)-int(a))*i/n)
}
