// Package imagesrc unifies the several ways a probe image can be supplied
// (local path, HTTP(S) URL, data URL, raw bytes, an already-decoded image)
// behind one loader that reduces any of them to an RGB pixel buffer.
package imagesrc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/kfsearch/kfsearch/internal/kferrors"
)

// FetchTimeout bounds HTTP(S) image fetches.
const FetchTimeout = 10 * time.Second

// Source is a tagged variant over every way a probe image may arrive.
// Exactly one field is populated, chosen by Kind.
type Source struct {
	Kind    Kind
	Path    string
	HTTPURL string
	DataURL string
	Bytes   []byte
	Decoded image.Image
}

// Kind discriminates Source's active field.
type Kind int

const (
	KindPath Kind = iota
	KindHTTPURL
	KindDataURL
	KindBytes
	KindDecoded
)

func FromPath(p string) Source          { return Source{Kind: KindPath, Path: p} }
func FromHTTPURL(u string) Source       { return Source{Kind: KindHTTPURL, HTTPURL: u} }
func FromDataURL(u string) Source       { return Source{Kind: KindDataURL, DataURL: u} }
func FromBytes(b []byte) Source         { return Source{Kind: KindBytes, Bytes: b} }
func FromDecoded(img image.Image) Source { return Source{Kind: KindDecoded, Decoded: img} }

// RGB is a decoded, RGB-normalized pixel buffer ready for per-model
// preprocessing (resize + channel mean/std normalization).
type RGB struct {
	Width  int
	Height int
	// Pix holds interleaved R,G,B bytes, row-major, Width*Height*3 long.
	Pix []byte
}

// Load reduces src to an RGB buffer, fetching or decoding as needed.
// Any failure surfaces as ImageLoadFailed{source, cause}.
func Load(src Source) (*RGB, error) {
	img, err := decode(src)
	if err != nil {
		return nil, err
	}
	return toRGB(img), nil
}

func decode(src Source) (image.Image, error) {
	switch src.Kind {
	case KindDecoded:
		if src.Decoded == nil {
			return nil, kferrors.ImageLoadFailed("decoded image source is nil", nil)
		}
		return src.Decoded, nil

	case KindBytes:
		img, _, err := image.Decode(bytes.NewReader(src.Bytes))
		if err != nil {
			return nil, kferrors.ImageLoadFailed("decode raw image bytes", err)
		}
		return img, nil

	case KindPath:
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, kferrors.ImageLoadFailed(fmt.Sprintf("open %s", src.Path), err)
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, kferrors.ImageLoadFailed(fmt.Sprintf("decode %s", src.Path), err)
		}
		return img, nil

	case KindHTTPURL:
		return fetchHTTP(src.HTTPURL)

	case KindDataURL:
		raw, err := decodeDataURL(src.DataURL)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, kferrors.ImageLoadFailed("decode data URL payload", err)
		}
		return img, nil

	default:
		return nil, kferrors.ImageLoadFailed(fmt.Sprintf("unrecognized image source kind %d", src.Kind), nil)
	}
}

func fetchHTTP(url string) (image.Image, error) {
	client := &http.Client{Timeout: FetchTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return nil, kferrors.ImageLoadFailed(fmt.Sprintf("fetch %s", url), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, kferrors.ImageLoadFailed(fmt.Sprintf("fetch %s: status %d", url, resp.StatusCode), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, kferrors.ImageLoadFailed(fmt.Sprintf("read body from %s", url), err)
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, kferrors.ImageLoadFailed(fmt.Sprintf("decode image from %s", url), err)
	}
	return img, nil
}

func decodeDataURL(u string) ([]byte, error) {
	const prefix = "data:"
	if !strings.HasPrefix(u, prefix) {
		return nil, kferrors.ImageLoadFailed("data URL missing \"data:\" prefix", nil)
	}
	comma := strings.IndexByte(u, ',')
	if comma < 0 {
		return nil, kferrors.ImageLoadFailed("data URL missing comma separator", nil)
	}
	meta, payload := u[len(prefix):comma], u[comma+1:]
	if !strings.Contains(meta, "base64") {
		return nil, kferrors.ImageLoadFailed("data URL is not base64-encoded", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, kferrors.ImageLoadFailed("decode base64 data URL payload", err)
	}
	return raw, nil
}

// toRGB rasterizes any image.Image into an interleaved RGB buffer using a
// bilinear draw into an RGBA canvas, then dropping alpha.
func toRGB(img image.Image) *RGB {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	pix := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		srcRow := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		dstRow := pix[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dstRow[x*3+0] = srcRow[x*4+0]
			dstRow[x*3+1] = srcRow[x*4+1]
			dstRow[x*3+2] = srcRow[x*4+2]
		}
	}
	return &RGB{Width: w, Height: h, Pix: pix}
}

// Resize scales an RGB buffer to (w, h) using bilinear interpolation, the
// shared step before per-model channel normalization.
func Resize(src *RGB, w, h int) *RGB {
	srcImg := &image.RGBA{
		Pix:    expandToRGBA(src),
		Stride: src.Width * 4,
		Rect:   image.Rect(0, 0, src.Width, src.Height),
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), srcImg, srcImg.Bounds(), draw.Over, nil)
	return toRGB(dst)
}

func expandToRGBA(src *RGB) []byte {
	out := make([]byte, src.Width*src.Height*4)
	for i := 0; i < src.Width*src.Height; i++ {
		out[i*4+0] = src.Pix[i*3+0]
		out[i*4+1] = src.Pix[i*3+1]
		out[i*4+2] = src.Pix[i*3+2]
		out[i*4+3] = 0xFF
	}
	return out
}
