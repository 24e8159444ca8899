package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Glyph bodies share a 45x45 viewBox.
const glyphBase = `<rect x="9" y="36" width="27" height="5" rx="1.5"/>`

var glyphs = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="13" r="5"/>` +
		`<path d="M17 36 L19.5 20 L25.5 20 L28 36 Z"/>`,
	nchess.Rook: `<path d="M11 36 L13 16 L32 16 L34 36 Z"/>` +
		`<path d="M11 16 L11 9 L15 9 L15 12 L20 12 L20 9 L25 9 L25 12 L30 12 L30 9 L34 9 L34 16 Z"/>`,
	nchess.Knight: `<path d="M14 36 L15 26 C15 22 19 19 21 16 L17 17 L13 21 L10 19 L17 10 L22 7 C30 7 34 13 32 36 Z"/>`,
	nchess.Bishop: `<ellipse cx="22.5" cy="21" rx="7" ry="10"/>` +
		`<circle cx="22.5" cy="8" r="3"/>` +
		`<path d="M16 36 L18 30 L27 30 L29 36 Z"/>`,
	nchess.Queen: `<path d="M10 34 L8 14 L15 24 L17 11 L22.5 23 L28 11 L30 24 L37 14 L35 34 Z"/>` +
		`<circle cx="8" cy="13" r="2.5"/><circle cx="17" cy="10" r="2.5"/>` +
		`<circle cx="28" cy="10" r="2.5"/><circle cx="37" cy="13" r="2.5"/>`,
	nchess.King: `<path d="M21 3 L24 3 L24 7 L28 7 L28 10 L24 10 L24 15 L21 15 L21 10 L17 10 L17 7 L21 7 Z"/>` +
		`<path d="M12 34 C6 24 14 16 22.5 22 C31 16 39 24 33 34 Z"/>`,
}

func glyphSVG(p nchess.Piece) (string, error) {
	body, ok := glyphs[p.Type()]
	if !ok {
		return "", fmt.Errorf("no glyph for piece %v", p)
	}
	fill, stroke := "#ffffff", "#000000"
	if p.Color() == nchess.Black {
		fill, stroke = "#1f1f1f", "#e8e8e8"
	}
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">`)
	fmt.Fprintf(&b, `<g fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round">`, fill, stroke)
	b.WriteString(body)
	b.WriteString(glyphBase)
	b.WriteString(`</g></svg>`)
	return b.String(), nil
}

type pieceKey struct {
	piece nchess.Piece
	size  int
}

type pieceCache struct {
	mu     sync.RWMutex
	images map[pieceKey]image.Image
}

func newPieceCache() *pieceCache {
	return &pieceCache{images: make(map[pieceKey]image.Image)}
}

// image rasterises the piece glyph at size pixels, caching the result.
func (c *pieceCache) image(p nchess.Piece, size int) (image.Image, error) {
	key := pieceKey{piece: p, size: size}
	c.mu.RLock()
	img, ok := c.images[key]
	c.mu.RUnlock()
	if ok {
		return img, nil
	}

	src, err := glyphSVG(p)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	c.mu.Lock()
	c.images[key] = rgba
	c.mu.Unlock()
	return rgba, nil
}
