package assets

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"

	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
)

const jpegQuality = 95

// NormalizeImage rewrites the image at path in place as an opaque
// 1920x1080 JPEG. The resize is a full stretch; letterboxing happens later in
// the filter graph.
func NormalizeImage(path string) error {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return errors.Decode("assets.normalize", path, err)
	}

	resized := imaging.Resize(flatten(src), models.TargetWidth, models.TargetHeight, imaging.Lanczos)

	if err := imaging.Save(resized, path, imaging.JPEGQuality(jpegQuality)); err != nil {
		return errors.Wrap(err, "assets.normalize", fmt.Sprintf("write %s", path))
	}
	return nil
}

// flatten composites src over black, dropping any alpha channel.
func flatten(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
