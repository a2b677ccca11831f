package thumbnail

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"media-browser/internal/mediatypes"
)

const maxPlaceholderName = 24

// placeholderPalette gives each media kind a distinct gradient so broken
// videos are visually distinguishable from broken images and unknown files.
var placeholderPalette = map[mediatypes.FileType][2]color.NRGBA{
	mediatypes.FileTypeImage: {
		{R: 0x3a, G: 0x6e, B: 0x8c, A: 0xff},
		{R: 0x1d, G: 0x32, B: 0x44, A: 0xff},
	},
	mediatypes.FileTypeVideo: {
		{R: 0x5c, G: 0x3a, B: 0x8c, A: 0xff},
		{R: 0x2a, G: 0x1d, B: 0x44, A: 0xff},
	},
	mediatypes.FileTypeOther: {
		{R: 0x55, G: 0x5a, B: 0x62, A: 0xff},
		{R: 0x2b, G: 0x2e, B: 0x33, A: 0xff},
	},
}

// Placeholder synthesizes a fallback thumbnail for a file that could not
// be decoded. It is a pure function of its inputs: no I/O, fully
// deterministic, and it cannot fail, which makes it the terminal state of
// every generation path.
func Placeholder(filename string, kind mediatypes.FileType, width, height int) string {
	if width < 1 {
		width = DefaultWidth
	}
	if height < 1 {
		height = DefaultHeight
	}

	colors, ok := placeholderPalette[kind]
	if !ok {
		colors = placeholderPalette[mediatypes.FileTypeOther]
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	drawGradient(img, colors[0], colors[1])

	switch kind {
	case mediatypes.FileTypeVideo:
		drawPlayTriangle(img)
	default:
		drawPageIcon(img)
	}

	ext := strings.ToUpper(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext != "" {
		drawCenteredText(img, ext, height/2+height/8)
	}
	drawCenteredText(img, truncateName(filename), height-height/8)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// Encoding an in-memory NRGBA cannot realistically fail; keep the
		// never-fail contract anyway.
		return emptyPixelPayload
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// emptyPixelPayload is a single-pixel PNG, the absolute fallback.
const emptyPixelPayload = "data:image/png;base64," +
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// truncateName shortens a file's base name for rendering inside the tile.
func truncateName(filename string) string {
	name := filepath.Base(filename)
	if len(name) <= maxPlaceholderName {
		return name
	}
	return name[:maxPlaceholderName-3] + "..."
}

// drawGradient fills img with a vertical gradient from top to bottom.
func drawGradient(img *image.NRGBA, top, bottom color.NRGBA) {
	bounds := img.Bounds()
	h := bounds.Dy()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		t := float64(y-bounds.Min.Y) / float64(h)
		c := color.NRGBA{
			R: lerp(top.R, bottom.R, t),
			G: lerp(top.G, bottom.G, t),
			B: lerp(top.B, bottom.B, t),
			A: 0xff,
		}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

var iconColor = color.NRGBA{R: 0xe8, G: 0xea, B: 0xed, A: 0xd0}

// drawPlayTriangle draws a right-pointing triangle in the upper-center
// region, the conventional play glyph for video tiles.
func drawPlayTriangle(img *image.NRGBA) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	size := min(w, h) / 4
	cx, cy := bounds.Min.X+w/2, bounds.Min.Y+h/3

	for dy := -size / 2; dy <= size/2; dy++ {
		// Row width shrinks linearly toward the triangle's tip.
		rowHalf := size/2 - abs(dy)
		for dx := 0; dx <= rowHalf; dx++ {
			img.SetNRGBA(cx-size/4+dx, cy+dy, iconColor)
		}
	}
}

// drawPageIcon draws a simple document outline in the upper-center region.
func drawPageIcon(img *image.NRGBA) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	iw, ih := min(w, h)/5, min(w, h)/4
	x0 := bounds.Min.X + w/2 - iw/2
	y0 := bounds.Min.Y + h/3 - ih/2

	for y := y0; y < y0+ih; y++ {
		for x := x0; x < x0+iw; x++ {
			onBorder := x == x0 || x == x0+iw-1 || y == y0 || y == y0+ih-1
			if onBorder {
				img.SetNRGBA(x, y, iconColor)
			}
		}
	}
}

// drawCenteredText renders s horizontally centered with its baseline at y.
// Text wider than the tile is clipped by the drawer, which is acceptable
// for a fallback tile.
func drawCenteredText(img *image.NRGBA, s string, y int) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, s).Ceil()
	x := (img.Bounds().Dx() - width) / 2
	if x < 2 {
		x = 2
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(iconColor),
		Face: face,
		Dot:  fixed.P(img.Bounds().Min.X+x, img.Bounds().Min.Y+y),
	}
	d.DrawString(s)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
