// Package images - Image loading for detection inputs.
package images

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// SupportedExtensions lists the file extensions LoadDirectory picks up.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff"}

// ImageFile represents a decoded image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Image is the decoded image, EXIF orientation applied.
	Image image.Image
}

// Decode decodes an encoded image (JPEG, PNG, BMP, GIF or TIFF) and applies
// its EXIF orientation.
//
// Arguments:
//   - data: The raw bytes of the encoded image.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An error if the data is empty or cannot be decoded.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return img, nil
}

// LoadFile opens and decodes a single image file.
func LoadFile(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	return img, nil
}

// LoadDirectory decodes every supported image file in a directory, sorted by
// file name. Subdirectories are ignored.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The decoded images.
//   - error: Error if the directory cannot be read or a file fails to decode.
func LoadDirectory(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read directory %s", dir)
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !IsSupported(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		img, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, ImageFile{Path: path, Image: img})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}

// IsSupported reports whether the file name has a supported image extension.
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}
