package mapping

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// labelHeight is the strip reserved above the grid for the caption
const labelHeight = 16

var (
	freeColor     = color.RGBA{255, 255, 255, 255}
	occupiedColor = color.RGBA{0, 0, 0, 255}
	labelBgColor  = color.RGBA{230, 230, 230, 255}
	labelColor    = color.RGBA{40, 40, 40, 255}
)

// GridRenderer draws an occupancy grid as a raster image. Row 0 of the grid
// is drawn at the bottom so +y points up, as in the grid frame.
type GridRenderer struct {
	Scale int    // pixels per cell (default 4)
	Label string // optional caption drawn above the grid
}

// NewGridRenderer creates a renderer with default settings
func NewGridRenderer() *GridRenderer {
	return &GridRenderer{Scale: 4}
}

// Render creates the grid image
func (r *GridRenderer) Render(grid *OccupancyGrid) *image.RGBA {
	scale := r.Scale
	if scale < 1 {
		scale = 1
	}
	top := 0
	if r.Label != "" {
		top = labelHeight
	}

	width := grid.Info.Width * scale
	height := grid.Info.Height*scale + top
	width = max(width, 1)
	height = max(height, 1)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{freeColor}, image.Point{}, draw.Src)

	for row := 0; row < grid.Info.Height; row++ {
		y0 := top + (grid.Info.Height-1-row)*scale
		for col := 0; col < grid.Info.Width; col++ {
			if grid.At(col, row) != CellOccupied {
				continue
			}
			x0 := col * scale
			cell := image.Rect(x0, y0, x0+scale, y0+scale)
			draw.Draw(img, cell, &image.Uniform{occupiedColor}, image.Point{}, draw.Src)
		}
	}

	if r.Label != "" {
		draw.Draw(img, image.Rect(0, 0, width, labelHeight), &image.Uniform{labelBgColor}, image.Point{}, draw.Src)
		drawText(img, 3, labelHeight-4, r.Label, labelColor)
	}
	return img
}

// RenderPNG renders grid and encodes it as PNG
func (r *GridRenderer) RenderPNG(w io.Writer, grid *OccupancyGrid) error {
	return png.Encode(w, r.Render(grid))
}

// drawText renders text onto an image at the specified baseline position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
