package collection

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	stationImageName      = "station-image"
	smallStationImageName = "station-image-small.jpg"
	defaultThumbnailSize  = 96
)

// storedImage describes the files written for a station image.
type storedImage struct {
	Image      string
	SmallImage string
	// Color is the average ARGB color of the image, or -1 when it could not be decoded.
	Color int
}

// stagedImage is a station image written under temporary names inside its folder.
type stagedImage struct {
	storedImage
	dir     string
	renames [][2]string
}

// stageStationImage copies src into dir and writes a JPEG thumbnail next to it, both under
// temporary names until commit. Formats without a registered decoder keep the full image as
// their small image.
func stageStationImage(src, dir string, maxSize int) (*stagedImage, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image folder: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = ".img"
	}
	st := &stagedImage{
		storedImage: storedImage{Image: filepath.Join(dir, stationImageName+ext), Color: -1},
		dir:         dir,
	}
	if err := st.write(st.Image, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		st.discard()
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	st.SmallImage = st.Image

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return st, nil
	}

	thumb := resize(img, maxSize)
	small := filepath.Join(dir, smallStationImageName)
	if err := st.write(small, func(w io.Writer) error { return encodeJPEG(w, thumb) }); err != nil {
		st.discard()
		return nil, fmt.Errorf("failed to write thumbnail: %w", err)
	}
	st.SmallImage = small
	st.Color = averageColor(thumb)
	return st, nil
}

// write fills a temporary file in the image folder that commit later renames to final.
func (st *stagedImage) write(final string, fill func(io.Writer) error) error {
	f, err := os.CreateTemp(st.dir, "."+filepath.Base(final)+"-*")
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	st.renames = append(st.renames, [2]string{f.Name(), final})
	return nil
}

// commit moves the staged files to their final names.
func (st *stagedImage) commit() error {
	for i, r := range st.renames {
		if err := os.Rename(r[0], r[1]); err != nil {
			st.renames = st.renames[i:]
			st.discard()
			return fmt.Errorf("failed to store image: %w", err)
		}
	}
	st.renames = nil
	return nil
}

// discard removes uncommitted files, and the image folder when that leaves it empty.
func (st *stagedImage) discard() {
	for _, r := range st.renames {
		os.Remove(r[0])
	}
	st.renames = nil
	os.Remove(st.dir)
}

// resize scales img to fit within maxSize x maxSize, keeping the aspect ratio.
func resize(img image.Image, maxSize int) image.Image {
	if maxSize <= 0 {
		maxSize = defaultThumbnailSize
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return img
	}
	if width > maxSize || height > maxSize {
		ratio := float64(width) / float64(height)
		if ratio < 1 {
			width = max(1, int(float64(maxSize)*ratio))
			height = maxSize
		} else {
			height = max(1, int(float64(maxSize)/ratio))
			width = maxSize
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// averageColor returns the mean color of img packed as opaque ARGB.
func averageColor(img image.Image) int {
	bounds := img.Bounds()
	var r, g, b, n uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			r += uint64(c.R)
			g += uint64(c.G)
			b += uint64(c.B)
			n++
		}
	}
	if n == 0 {
		return -1
	}
	return int(0xff<<24 | (r/n)<<16 | (g/n)<<8 | b/n)
}

func encodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
}
