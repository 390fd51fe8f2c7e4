// Package util - File helpers shared by the command line tools.
package util

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-pillcheck/images"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Image holds the raw bytes of the image file with their format and size.
	Image *images.Image
}

// LoadDirectoryImageFiles reads all supported image files from a directory.
//
// Files whose extension is not a supported image format are skipped. Files with a
// supported extension that fail to decode are an error.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The images, sorted by file name.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image directory")
	}

	var out []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if _, err := images.FormatFromPath(file.Name()); err != nil {
			continue
		}

		path := filepath.Join(dir, file.Name())
		img, err := images.NewImage(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", path)
		}
		out = append(out, ImageFile{Path: path, Image: img})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})

	return out, nil
}
