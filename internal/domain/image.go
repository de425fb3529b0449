package domain

import "encoding/base64"

// ImageKind discriminates the variants of ImageReference.
type ImageKind int

const (
	ImageRemoteURL ImageKind = iota + 1
	ImageInlineBytes
	ImageBase64
)

func (k ImageKind) String() string {
	switch k {
	case ImageRemoteURL:
		return "remote_url"
	case ImageInlineBytes:
		return "inline_bytes"
	case ImageBase64:
		return "base64"
	default:
		return "unknown"
	}
}

// ImageReference is one of: a remote URL, raw bytes, or a base64 string.
// Only the field matching Kind is meaningful.
type ImageReference struct {
	Kind     ImageKind
	URL      string
	Data     []byte
	Base64   string
	MimeType string
}

func RemoteURL(u string) ImageReference {
	return ImageReference{Kind: ImageRemoteURL, URL: u}
}

func InlineBytes(data []byte, mimeType string) ImageReference {
	return ImageReference{Kind: ImageInlineBytes, Data: data, MimeType: mimeType}
}

func Base64String(s, mimeType string) ImageReference {
	return ImageReference{Kind: ImageBase64, Base64: s, MimeType: mimeType}
}

// Encoded returns the base64 form of an inline or base64 reference.
// Remote URLs return "".
func (r ImageReference) Encoded() string {
	switch r.Kind {
	case ImageInlineBytes:
		return base64.StdEncoding.EncodeToString(r.Data)
	case ImageBase64:
		return r.Base64
	default:
		return ""
	}
}

// ImageTransfer is the wire shape a deployment's analysis service accepts.
type ImageTransfer string

const (
	TransferURL    ImageTransfer = "url"
	TransferBase64 ImageTransfer = "base64"
)
