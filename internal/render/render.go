// Package render draws a position as a PNG board image.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize   = 56
	boardSquares = 8
	boardSize    = squareSize * boardSquares
	sideMargin   = 24
	headerHeight = 32
	bottomMargin = 24
)

var (
	lightSquare   = color.RGBA{233, 207, 163, 255}
	darkSquare    = color.RGBA{187, 136, 96, 255}
	lastMoveFill  = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	lastMoveArrow = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	headerColor   = color.NRGBA{R: 28, G: 31, B: 46, A: 255}
	headerText    = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	coordColor    = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// Options tune one rendering.
type Options struct {
	// Flip draws the board from black's side.
	Flip bool
	// LastFrom and LastTo are algebraic squares of the previous move.
	LastFrom string
	LastTo   string
	Header   string
}

type Renderer struct {
	pieces *pieceCache
	face   font.Face
}

func New() *Renderer {
	return &Renderer{pieces: newPieceCache(), face: basicfont.Face7x13}
}

// BoardPNG renders fen. Only the placement field is consulted for drawing,
// but the whole FEN must be valid.
func (r *Renderer) BoardPNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	b, err := rules.New(fen)
	if err != nil {
		return nil, err
	}
	pos := b.Position()
	if pos == nil {
		return nil, fmt.Errorf("empty position")
	}

	width := boardSize + sideMargin*2
	height := headerHeight + boardSize + bottomMargin
	origin := image.Point{X: sideMargin, Y: headerHeight}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{20, 22, 32, 255}), image.Point{}, draw.Src)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.drawHeader(img, opts.Header)
	for row := 0; row < boardSquares; row++ {
		for col := 0; col < boardSquares; col++ {
			file, rank := squareAt(row, col, opts.Flip)
			clr := lightSquare
			if (file+rank)%2 == 0 {
				clr = darkSquare
			}
			draw.Draw(img, cellRect(row, col, origin), image.NewUniform(clr), image.Point{}, draw.Src)
		}
	}

	from, fromOK := parseSquare(opts.LastFrom)
	to, toOK := parseSquare(opts.LastTo)
	if fromOK && toOK {
		for _, sq := range [][2]int{from, to} {
			row, col := cellOf(sq[0], sq[1], opts.Flip)
			draw.Draw(img, cellRect(row, col, origin), image.NewUniform(lastMoveFill), image.Point{}, draw.Over)
		}
	}

	squares := pos.Board().SquareMap()
	for row := 0; row < boardSquares; row++ {
		for col := 0; col < boardSquares; col++ {
			file, rank := squareAt(row, col, opts.Flip)
			piece := squares[nchess.NewSquare(nchess.File(file), nchess.Rank(rank))]
			if piece == nchess.NoPiece {
				continue
			}
			glyph, err := r.pieces.image(piece, squareSize)
			if err != nil {
				return nil, err
			}
			draw.Draw(img, cellRect(row, col, origin), glyph, image.Point{}, draw.Over)
		}
	}

	if fromOK && toOK && from != to {
		fr, fc := cellOf(from[0], from[1], opts.Flip)
		tr, tc := cellOf(to[0], to[1], opts.Flip)
		x0, y0 := cellCenter(fr, fc, origin)
		x1, y1 := cellCenter(tr, tc, origin)
		drawArrow(img, x0, y0, x1, y1, lastMoveArrow)
	}
	r.drawCoordinates(img, origin, opts.Flip)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// squareAt maps a screen cell to file and rank indexes (0-7).
func squareAt(row, col int, flip bool) (file, rank int) {
	if flip {
		return 7 - col, row
	}
	return col, 7 - row
}

func cellOf(file, rank int, flip bool) (row, col int) {
	if flip {
		return rank, 7 - file
	}
	return 7 - rank, file
}

func cellRect(row, col int, origin image.Point) image.Rectangle {
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func cellCenter(row, col int, origin image.Point) (float64, float64) {
	return float64(origin.X + col*squareSize + squareSize/2), float64(origin.Y + row*squareSize + squareSize/2)
}

func parseSquare(sq string) ([2]int, bool) {
	sq = strings.ToLower(strings.TrimSpace(sq))
	if len(sq) != 2 || sq[0] < 'a' || sq[0] > 'h' || sq[1] < '1' || sq[1] > '8' {
		return [2]int{}, false
	}
	return [2]int{int(sq[0] - 'a'), int(sq[1] - '1')}, true
}

// drawArrow fills a shaft and head polygon between two cell centres.
func drawArrow(img *image.RGBA, x0, y0, x1, y1 float64, clr color.Color) {
	dx, dy := x1-x0, y1-y0
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	ux, uy := dx/length, dy/length
	px, py := -uy, ux

	half := float64(squareSize) * 0.09
	head := float64(squareSize) * 0.22
	baseLen := length - head*1.4
	if baseLen < 0 {
		baseLen = length * 0.5
	}
	bx, by := x0+ux*baseLen, y0+uy*baseLen

	bounds := img.Bounds()
	scanner := rasterx.NewScannerGV(bounds.Dx(), bounds.Dy(), img, bounds)
	filler := rasterx.NewFiller(bounds.Dx(), bounds.Dy(), scanner)
	filler.SetColor(clr)
	filler.Start(rasterx.ToFixedP(x0+px*half, y0+py*half))
	filler.Line(rasterx.ToFixedP(bx+px*half, by+py*half))
	filler.Line(rasterx.ToFixedP(bx+px*head, by+py*head))
	filler.Line(rasterx.ToFixedP(x1, y1))
	filler.Line(rasterx.ToFixedP(bx-px*head, by-py*head))
	filler.Line(rasterx.ToFixedP(bx-px*half, by-py*half))
	filler.Line(rasterx.ToFixedP(x0-px*half, y0-py*half))
	filler.Stop(true)
	filler.Draw()
}

func (r *Renderer) drawHeader(img *image.RGBA, text string) {
	rect := image.Rect(0, 0, img.Bounds().Dx(), headerHeight-6)
	draw.Draw(img, rect, image.NewUniform(headerColor), image.Point{}, draw.Src)
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d := &font.Drawer{Dst: img, Src: image.NewUniform(headerText), Face: r.face}
	text = truncate(d, text, rect.Dx()-sideMargin)
	w := d.MeasureString(text).Round()
	ascent := r.face.Metrics().Ascent.Ceil()
	d.Dot = fixed.P((rect.Dx()-w)/2, (rect.Dy()+ascent)/2)
	d.DrawString(text)
}

func truncate(d *font.Drawer, text string, maxWidth int) string {
	if d.MeasureString(text).Round() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if c := string(runes) + "..."; d.MeasureString(c).Round() <= maxWidth {
			return c
		}
	}
	return ""
}

func (r *Renderer) drawCoordinates(img *image.RGBA, origin image.Point, flip bool) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(coordColor), Face: r.face}
	ascent := r.face.Metrics().Ascent.Ceil()
	for i := 0; i < boardSquares; i++ {
		file, rank := squareAt(i, i, flip)
		fileLabel := string(rune('a' + file))
		rankLabel := string(rune('1' + rank))

		cx := origin.X + i*squareSize + squareSize/2
		w := d.MeasureString(fileLabel).Round()
		d.Dot = fixed.P(cx-w/2, origin.Y+boardSize+ascent+4)
		d.DrawString(fileLabel)

		cy := origin.Y + i*squareSize + squareSize/2
		w = d.MeasureString(rankLabel).Round()
		d.Dot = fixed.P(origin.X-sideMargin/2-w/2, cy+ascent/2)
		d.DrawString(rankLabel)
	}
}
