package report

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/floats"
)

const (
	tileSize   = 96 // upscaled edge of one archived image
	padding    = 2
	captionH   = 16
	captionPad = 3
)

// #region tile
// Tile renders one CHW row as an RGB image. Values are min-max scaled per
// image to [0, 255]; a constant image renders black. One channel renders
// grey.
func Tile(row []float64, channels, size int) *image.RGBA {
	lo, hi := floats.Min(row), floats.Max(row)
	span := hi - lo
	level := func(v float64) uint8 {
		if span == 0 {
			return 0
		}
		return uint8((v-lo)/span*255 + 0.5)
	}

	plane := size * size
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := y*size + x
			var c [3]uint8
			for ch := 0; ch < 3; ch++ {
				src := ch
				if src >= channels {
					src = channels - 1
				}
				c[ch] = level(row[src*plane+p])
			}
			img.SetRGBA(x, y, color.RGBA{c[0], c[1], c[2], 255})
		}
	}
	return img
}

// #endregion tile

// #region strip
// Panel is one captioned image of a strip.
type Panel struct {
	Row     []float64
	Caption string
}

// Strip lays panels side by side, each upscaled and captioned underneath.
func Strip(panels []Panel, channels, size int) *image.RGBA {
	w := padding + len(panels)*(tileSize+padding)
	h := padding + tileSize + captionH
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	for i, p := range panels {
		x0 := padding + i*(tileSize+padding)
		dst := image.Rect(x0, padding, x0+tileSize, padding+tileSize)
		tile := Tile(p.Row, channels, size)
		draw.NearestNeighbor.Scale(canvas, dst, tile, tile.Bounds(), draw.Src, nil)

		d := &font.Drawer{
			Dst:  canvas,
			Src:  image.Black,
			Face: basicfont.Face7x13,
			Dot:  fixed.P(x0+captionPad, padding+tileSize+captionH-captionPad),
		}
		d.DrawString(p.Caption)
	}
	return canvas
}

// #endregion strip

// #region save
// SavePNG writes img to path.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// #endregion save
