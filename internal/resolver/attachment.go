// Package resolver turns inbound payloads into an ImageReference.
package resolver

import (
	"strings"

	"foodrelay/internal/domain"
)

// URLExtractor reads one candidate link field from an attachment.
type URLExtractor struct {
	Field string
	Get   func(domain.Attachment) string
}

// URLExtractors is the fixed priority order in which attachment link
// fields are tried. The first non-blank value wins.
var URLExtractors = []URLExtractor{
	{"url", func(a domain.Attachment) string { return a.URL }},
	{"file_url", func(a domain.Attachment) string { return a.FileURL }},
	{"download_url", func(a domain.Attachment) string { return a.DownloadURL }},
	{"link", func(a domain.Attachment) string { return a.Link }},
	{"preview_url", func(a domain.Attachment) string { return a.PreviewURL }},
	{"thumbnail_url", func(a domain.Attachment) string { return a.ThumbnailURL }},
}

// AttachmentURL returns the first non-blank link on a and the field it came from.
func AttachmentURL(a domain.Attachment) (url, field string, ok bool) {
	for _, ex := range URLExtractors {
		if v := strings.TrimSpace(ex.Get(a)); v != "" {
			return v, ex.Field, true
		}
	}
	return "", "", false
}

// FromEvent resolves the image of a JSON webhook event. Only the first
// attachment is considered. Returns domain.ErrNoImageProvided when the
// event has no attachment and domain.ErrNoImageURL when the first
// attachment carries no link.
func FromEvent(evt domain.InboundEvent) (domain.ImageReference, error) {
	att, ok := evt.FirstAttachment()
	if !ok {
		return domain.ImageReference{}, domain.ErrNoImageProvided
	}
	url, _, ok := AttachmentURL(att)
	if !ok {
		return domain.ImageReference{}, domain.ErrNoImageURL
	}
	return domain.RemoteURL(url), nil
}

// RequesterOf returns the event's sender with placeholder defaults.
func RequesterOf(evt domain.InboundEvent) domain.Requester {
	return domain.Requester{Name: evt.User.Name, Email: evt.User.Email}.WithDefaults()
}
