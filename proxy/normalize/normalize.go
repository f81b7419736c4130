// Package normalize canonicalizes chat-completion request bodies. Whatever
// wire shape the caller used for multimodal content, the output is a single
// canonical form: every image part is an image_url object with an explicit
// detail, every uploaded attachment has become a data URL, and every field
// the normalizer does not understand is carried through byte-for-byte.
package normalize

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Limits are the attachment bounds enforced on multipart requests. They come
// from the immutable startup configuration.
type Limits struct {
	AllowedMimeTypes []string
	MaxFileBytes     int64
	MaxFileCount     int
}

// ChatBody canonicalizes a JSON chat-completion body. Plain-string message
// content is untouched; part-list content is rewritten in canonical form.
// The input slice is never modified: a returned error means the caller's
// request had no side effects.
func ChatBody(body []byte) ([]byte, error) {
	return normalizeMessages(body, nil)
}

func normalizeMessages(body []byte, resolver *attachmentResolver) ([]byte, error) {
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return body, nil
	}

	out := body
	var err error
	for i, msg := range messages.Array() {
		content := msg.Get("content")
		if !content.IsArray() {
			// PlainText content needs no canonicalization.
			continue
		}

		parts := parseParts(content)
		canonical, cerr := resolveParts(parts, resolver)
		if cerr != nil {
			return nil, cerr
		}

		out, err = sjson.SetRawBytes(out, fmt.Sprintf("messages.%d.content", i), []byte(marshalParts(canonical)))
		if err != nil {
			return nil, fmt.Errorf("error rewriting message content: %w", err)
		}
	}
	return out, nil
}

// resolveParts validates image parts and, when a resolver is present,
// substitutes uploaded attachments for image_file parts. Text and raw parts
// pass through unchanged.
func resolveParts(parts []Part, resolver *attachmentResolver) ([]Part, error) {
	resolved := make([]Part, 0, len(parts))
	for _, part := range parts {
		if part.IsRaw() {
			resolved = append(resolved, part)
			continue
		}

		switch part.Type {
		case PartTypeText:
			resolved = append(resolved, part)

		case PartTypeImageURL:
			if err := validateImageURL(part.URL); err != nil {
				return nil, err
			}
			resolved = append(resolved, part)

		case PartTypeImageFile:
			if resolver == nil {
				return nil, errUnresolvedFileKey(part.FileKey)
			}
			dataURL, ok := resolver.claim(part.FileKey)
			if !ok {
				return nil, errUnresolvedFileKey(part.FileKey)
			}
			resolved = append(resolved, Part{
				Type:   PartTypeImageURL,
				URL:    dataURL,
				Detail: part.Detail,
			})

		default:
			resolved = append(resolved, part)
		}
	}
	return resolved, nil
}
