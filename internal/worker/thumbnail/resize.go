package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

var (
	// ErrUndecodable は元データを画像として解釈できないことを示す。
	ErrUndecodable = errors.New("undecodable image")
	// ErrTooLarge は元画像のピクセル数がMaxSourcePixelsを超えることを示す。
	ErrTooLarge = errors.New("image too large")
)

// MaxSourcePixels は縮小対象として受け付ける元画像の最大ピクセル数。
const MaxSourcePixels = 50_000_000

// jpegQuality はJPEG再エンコード時の品質。
const jpegQuality = 85

// Source はデコード済みの元画像。
// Resizeは元画像を読むだけなので、複数のゴルーチンから同時に呼び出してよい。
type Source struct {
	img    image.Image
	format string
}

// Decode は元データをデコードする。
// 本体を展開する前にヘッダーの寸法を確認し、MaxSourcePixelsを超える画像は拒否する。
func Decode(data []byte) (*Source, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrUndecodable)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return &Source{img: img, format: format}, nil
}

// Format は元画像の形式名（png、jpeg、gif）を返す。
func (s *Source) Format() string {
	return s.format
}

// Resize は元画像を指定幅に縮尺し、元と同じ形式でエンコードして返す。
// 高さは縦横比を保って算出する。
func (s *Source) Resize(width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid width: %d", width)
	}

	bounds := s.img.Bounds()
	height := int(math.Round(float64(bounds.Dy()) * float64(width) / float64(bounds.Dx())))
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), s.img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	var err error
	switch s.format {
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
	case "gif":
		err = gif.Encode(&buf, dst, nil)
	default:
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s thumbnail: %w", s.format, err)
	}
	return buf.Bytes(), nil
}

// Resize はdataをデコードして指定幅に縮尺する。対応形式はPNG、JPEG、GIF。
// 同じ画像から複数の幅を作る場合はDecodeとSource.Resizeを使うこと。
func Resize(data []byte, width int) ([]byte, error) {
	src, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return src.Resize(width)
}
