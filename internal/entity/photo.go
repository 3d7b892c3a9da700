package entity

// Photo is the metadata view of a stored original. MediaURL and ThumbURL are
// derived paths, never the storage keys themselves.
type Photo struct {
	ID           string `json:"id"`
	BusinessID   string `json:"businessId"`
	ContentType  string `json:"contentType"`
	Filename     string `json:"filename,omitempty"`
	Size         int64  `json:"size,omitempty"`
	DerivativeID string `json:"-"`
	MediaURL     string `json:"url"`
	ThumbURL     string `json:"thumbUrl"`
}

// PhotoRef is returned to the uploader: the new photo id plus discoverable
// links, including the thumbnail link that is valid before the derivative
// bytes exist.
type PhotoRef struct {
	ID    string     `json:"id"`
	Links PhotoLinks `json:"links"`
}

type PhotoLinks struct {
	Meta  string `json:"meta"`
	Photo string `json:"photo"`
	Thumb string `json:"thumb"`
}
