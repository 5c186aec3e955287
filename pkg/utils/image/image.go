package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"
)

const jpegQuality = 95

func DecodeJPEG(data []byte) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(data))
}

func EncodeJPEG(img image.Image, dst io.Writer) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: jpegQuality})
}

// WriteFrame persists a JPEG frame to path. jpg frames are written as-is,
// other formats are transcoded.
func WriteFrame(frame []byte, path, ext string) error {
	switch strings.ToLower(ext) {
	case "jpg", "jpeg":
		return os.WriteFile(path, frame, 0644)
	case "png":
		img, err := DecodeJPEG(frame)
		if err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return png.Encode(f, img)
	default:
		return fmt.Errorf("unsupported image type %q", ext)
	}
}
