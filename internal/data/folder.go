package data

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// #region image-folder
// Folder is a labelled image set laid out as <root>/<class>/<image>.
type Folder struct {
	Classes []string
	Stream  *SliceStream
}

// LoadFolder decodes every PNG/JPEG under root, resizes it to size×size,
// converts it to a [0,1] CHW row and normalizes it. Class indices follow the
// sorted directory names.
func LoadFolder(root string, size int, norm Normalization, batchSize int, rng *rand.Rand) (*Folder, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", root, err)
	}

	f := &Folder{}
	var rows [][]float64
	var labels []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		label := len(f.Classes)
		f.Classes = append(f.Classes, e.Name())

		dir := filepath.Join(root, e.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read class dir %s: %w", dir, err)
		}
		for _, file := range files {
			if file.IsDir() || !isImage(file.Name()) {
				continue
			}
			path := filepath.Join(dir, file.Name())
			raw, err := loadImage(path, size)
			if err != nil {
				return nil, err
			}
			rows = append(rows, norm.Normalize(raw))
			labels = append(labels, label)
		}
	}

	f.Stream = NewSliceStream(rows, labels, batchSize, rng)
	return f, nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

func loadImage(path string, size int) ([]float64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer fh.Close()

	src, _, err := image.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return ToCHW(dst), nil
}

// ToCHW converts an RGBA image into a [0,1] channel-major row (R plane, G plane, B plane).
func ToCHW(img *image.RGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	plane := w * h
	out := make([]float64, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := img.PixOffset(x+img.Rect.Min.X, y+img.Rect.Min.Y)
			i := y*w + x
			out[i] = float64(img.Pix[p]) / 255
			out[plane+i] = float64(img.Pix[p+1]) / 255
			out[2*plane+i] = float64(img.Pix[p+2]) / 255
		}
	}
	return out
}

// #endregion image-folder
