// Package render - Draws detections onto frames with OpenCV.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Style controls the box and label appearance.
type Style struct {
	Thickness int
	FontScale float64
	Font      gocv.HersheyFont
}

// DefaultStyle is used by Draw.
var DefaultStyle = Style{
	Thickness: 2,
	FontScale: 0.5,
	Font:      gocv.FontHersheySimplex,
}

var textColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Label returns the caption drawn above a detection, e.g. "dog 0.87".
func Label(r postprocess.Result) string {
	return fmt.Sprintf("%s %.2f", r.Label, r.Score)
}

// Draw outlines each detection in its class color and writes its label.
//
// Arguments:
//   - mat: The BGR frame to draw on. Boxes must be in its pixel space.
//   - results: The detections.
//   - classes: The catalog that supplies the colors.
func Draw(mat *gocv.Mat, results []postprocess.Result, classes models.OutputClassSet) {
	DrawWithStyle(mat, results, classes, DefaultStyle)
}

// DrawWithStyle is Draw with a custom style.
func DrawWithStyle(mat *gocv.Mat, results []postprocess.Result, classes models.OutputClassSet, style Style) {
	for _, r := range results {
		c := classes.Color(r.Class)
		rect := r.Box.Rectangle()
		gocv.Rectangle(mat, rect, c, style.Thickness)

		label := Label(r)
		size := gocv.GetTextSize(label, style.Font, style.FontScale, 1)
		origin := image.Pt(rect.Min.X, rect.Min.Y-4)
		if origin.Y-size.Y < 0 {
			// No room above the box.
			origin.Y = rect.Min.Y + size.Y + 4
		}
		bg := image.Rect(origin.X, origin.Y-size.Y-4, origin.X+size.X+4, origin.Y+4)
		gocv.Rectangle(mat, bg, c, -1)
		gocv.PutText(mat, label, image.Pt(origin.X+2, origin.Y), style.Font, style.FontScale, textColor, 1)
	}
}

// DrawImage draws results onto a copy of img.
func DrawImage(img image.Image, results []postprocess.Result, classes models.OutputClassSet) (image.Image, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.Wrap(err, "convert image to mat")
	}
	defer mat.Close()

	Draw(&mat, results, classes)

	out, err := mat.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "convert mat to image")
	}
	return out, nil
}

// WriteFile draws results onto img and writes it to path. The format follows
// the file extension.
func WriteFile(path string, img image.Image, results []postprocess.Result, classes models.OutputClassSet) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrap(err, "convert image to mat")
	}
	defer mat.Close()

	Draw(&mat, results, classes)

	if !gocv.IMWrite(path, mat) {
		return errors.Errorf("failed to write %s", path)
	}
	return nil
}
