package transforms

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// DefaultJPEGQuality is used when Images.Quality is unset.
const DefaultJPEGQuality = 85

// Images optimizes raster images. PNGs are re-encoded with the best compression,
// JPEGs are re-encoded at Quality when Lossy is set, and every other image type is
// copied unchanged. A re-encoded file that ends up larger than its source is
// replaced by the source bytes.
type Images struct {
	Lossy     bool `yaml:"lossy" toml:"lossy"`
	Quality   int  `yaml:"quality" toml:"quality"`
	OnlyNewer bool `yaml:"only_newer" toml:"only_newer"`
	// Progressive is accepted for configuration compatibility. The encoder always
	// writes baseline JPEGs.
	Progressive bool `yaml:"progressive" toml:"progressive"`
}

// Run writes each image to its relative path under the output directory.
// Non-image inputs fail the task.
func (im Images) Run(ctx context.Context, req task.Request) ([]string, error) {
	var written []string
	for _, file := range req.Files {
		if err := checkContext(ctx); err != nil {
			return written, err
		}
		dst := dest(req, file, "")
		if im.OnlyNewer && upToDate(sourcePath(req, file), dst) {
			continue
		}
		src, err := readSource(req, file)
		if err != nil {
			return written, err
		}
		out, err := im.Optimize(file, src)
		if err != nil {
			return written, err
		}
		if err := writeAtomic(dst, out); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}

// Optimize returns the optimized bytes for one image.
func (im Images) Optimize(file string, src []byte) ([]byte, error) {
	mt := mimetype.Detect(src)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, transformError("not an image ("+mt.String()+")", file, nil)
	}

	var (
		img image.Image
		buf bytes.Buffer
		err error
	)
	switch {
	case mt.Is("image/png"):
		if img, err = png.Decode(bytes.NewReader(src)); err != nil {
			return nil, transformError("decode png", file, err)
		}
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err = enc.Encode(&buf, img); err != nil {
			return nil, transformError("encode png", file, err)
		}
	case mt.Is("image/jpeg") && im.Lossy:
		if img, err = jpeg.Decode(bytes.NewReader(src)); err != nil {
			return nil, transformError("decode jpeg", file, err)
		}
		q := im.Quality
		if q <= 0 || q > 100 {
			q = DefaultJPEGQuality
		}
		if err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, transformError("encode jpeg", file, err)
		}
	default:
		return src, nil
	}

	if buf.Len() >= len(src) {
		return src, nil
	}
	return buf.Bytes(), nil
}
