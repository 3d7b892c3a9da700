package entity

import "fmt"

// Format is the closed set of raster formats accepted for upload.
type Format int

const (
	FormatJPEG Format = iota
	FormatPNG
)

const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

func ParseFormat(contentType string) (Format, error) {
	switch contentType {
	case ContentTypeJPEG:
		return FormatJPEG, nil
	case ContentTypePNG:
		return FormatPNG, nil
	default:
		return 0, fmt.Errorf("content type `%s`: %w", contentType, ErrUnsupportedMedia)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return ContentTypePNG
	default:
		return ContentTypeJPEG
	}
}

func (f Format) Ext() string {
	switch f {
	case FormatPNG:
		return ".png"
	default:
		return ".jpg"
	}
}
