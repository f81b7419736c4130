package normalize

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	PartTypeText      = "text"
	PartTypeImageURL  = "image_url"
	PartTypeImageFile = "image_file"

	DetailAuto = "auto"
	DetailLow  = "low"
	DetailHigh = "high"
)

// imageURLExtensions are the remote-image extensions accepted on non-data
// URLs, matched case-insensitively against the URL path.
var imageURLExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Part is one element of a part-list message content. Exactly one variant is
// populated: Text for text parts, URL/Detail for image_url parts, FileKey for
// image_file parts awaiting an uploaded attachment, and Raw for part shapes
// the gateway does not recognize and forwards verbatim.
type Part struct {
	Type string

	Text string

	URL    string
	Detail string

	FileKey string

	Raw string
}

// IsRaw reports whether this part is an unrecognized shape carried through
// untouched.
func (p Part) IsRaw() bool {
	return p.Raw != ""
}

// parseParts decodes a content array into parts. It never rejects a part
// shape it does not recognize; those are kept raw.
func parseParts(content gjson.Result) []Part {
	var parts []Part
	content.ForEach(func(_, el gjson.Result) bool {
		parts = append(parts, parsePart(el))
		return true
	})
	return parts
}

func parsePart(el gjson.Result) Part {
	if !el.IsObject() {
		return Part{Raw: el.Raw}
	}

	switch el.Get("type").String() {
	case PartTypeText:
		return Part{Type: PartTypeText, Text: el.Get("text").String()}

	case PartTypeImageURL:
		image := el.Get("image_url")
		part := Part{Type: PartTypeImageURL, Detail: DetailAuto}
		if image.Type == gjson.String {
			// shorthand: "image_url": "https://..."
			part.URL = image.String()
			return part
		}
		part.URL = image.Get("url").String()
		if detail := image.Get("detail").String(); detail != "" {
			part.Detail = detail
		}
		return part

	case PartTypeImageFile:
		file := el.Get("image_file")
		part := Part{Type: PartTypeImageFile, Detail: DetailAuto}
		if file.Type == gjson.String {
			part.FileKey = file.String()
			return part
		}
		part.FileKey = file.Get("file_key").String()
		if detail := file.Get("detail").String(); detail != "" {
			part.Detail = detail
		}
		return part

	default:
		return Part{Raw: el.Raw}
	}
}

// marshalParts renders parts in canonical form. The field order is fixed so
// normalization is deterministic and idempotent.
func marshalParts(parts []Part) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, part := range parts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(marshalPart(part))
	}
	b.WriteByte(']')
	return b.String()
}

func marshalPart(part Part) string {
	if part.IsRaw() {
		return part.Raw
	}
	switch part.Type {
	case PartTypeText:
		return fmt.Sprintf(`{"type":"text","text":%s}`, quoteJSON(part.Text))
	case PartTypeImageURL:
		return fmt.Sprintf(`{"type":"image_url","image_url":{"url":%s,"detail":%s}}`,
			quoteJSON(part.URL), quoteJSON(part.Detail))
	default:
		// image_file parts never survive to marshalling: they are resolved
		// to image_url parts or the request has already failed.
		return part.Raw
	}
}

func quoteJSON(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(fmt.Sprintf(`\u%04x`, r))
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// validateImageURL enforces that a non-data image URL parses and terminates
// in a recognized image extension. Data URLs always pass.
func validateImageURL(raw string) error {
	if raw == "" {
		return errInvalidImageURL()
	}
	if strings.HasPrefix(raw, "data:") {
		return nil
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errInvalidImageURL()
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if !imageURLExtensions[ext] {
		return errInvalidImageURL()
	}
	return nil
}
