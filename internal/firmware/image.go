// Package firmware loads Gecko bootloader images and plans their upload.
package firmware

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Extension is the file extension of an upgrade image.
const Extension = ".gbl"

// ErrInvalidImage is returned for a path that cannot be uploaded.
var ErrInvalidImage = errors.New("firmware: invalid image")

// Image is a validated upgrade image held in memory.
type Image struct {
	Path   string
	Data   []byte
	Digest [blake2b.Size256]byte
}

// Load validates and reads the image at path. Every check runs before the
// module is touched, so a bad path never leaves it in bootloader mode.
func Load(path string) (*Image, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidImage)
	}
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		return nil, fmt.Errorf("%w: %s: extension must be %s", ErrInvalidImage, path, Extension)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidImage, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidImage, path)
	}

	return &Image{Path: path, Data: data, Digest: blake2b.Sum256(data)}, nil
}

// Size returns the image length in bytes.
func (img *Image) Size() int { return len(img.Data) }

// DigestHex returns the hex form of the image digest.
func (img *Image) DigestHex() string { return hex.EncodeToString(img.Digest[:]) }
