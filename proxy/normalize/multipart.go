package normalize

import (
	"encoding/base64"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Attachment is one uploaded binary file. It lives only for the duration of
// the request that carried it and is never persisted.
type Attachment struct {
	FieldName string
	MimeType  string
	Data      []byte
}

// attachmentResolver hands out data URLs for uploaded files, keyed by the
// multipart field name. Each attachment may satisfy at most one image_file
// part; whatever is left unclaimed is appended to the last message.
type attachmentResolver struct {
	order   []string
	dataURL map[string]string
	claimed map[string]bool
}

func newAttachmentResolver(attachments []Attachment) *attachmentResolver {
	r := &attachmentResolver{
		dataURL: make(map[string]string, len(attachments)),
		claimed: make(map[string]bool, len(attachments)),
	}
	for _, att := range attachments {
		r.order = append(r.order, att.FieldName)
		r.dataURL[att.FieldName] = dataURL(att)
	}
	return r
}

func (r *attachmentResolver) claim(key string) (string, bool) {
	u, ok := r.dataURL[key]
	if !ok {
		return "", false
	}
	r.claimed[key] = true
	return u, true
}

// unclaimed returns the data URLs of attachments no image_file part asked
// for, in upload order.
func (r *attachmentResolver) unclaimed() []string {
	var out []string
	for _, key := range r.order {
		if !r.claimed[key] {
			out = append(out, r.dataURL[key])
		}
	}
	return out
}

func dataURL(att Attachment) string {
	return "data:" + att.MimeType + ";base64," + base64.StdEncoding.EncodeToString(att.Data)
}

// Multipart canonicalizes the JSON payload field of a multipart request and
// folds the uploaded attachments into it. Attachments are validated against
// the configured limits before any conversion happens.
func Multipart(payload []byte, attachments []Attachment, limits Limits) ([]byte, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errInvalidPayloadJSON()
	}

	if err := validateAttachments(attachments, limits); err != nil {
		return nil, err
	}

	resolver := newAttachmentResolver(attachments)
	out, err := normalizeMessages(payload, resolver)
	if err != nil {
		return nil, err
	}

	leftover := resolver.unclaimed()
	if len(leftover) == 0 {
		return out, nil
	}
	return appendToLastMessage(out, leftover)
}

func validateAttachments(attachments []Attachment, limits Limits) error {
	if limits.MaxFileCount > 0 && len(attachments) > limits.MaxFileCount {
		return errTooManyFiles(limits.MaxFileCount)
	}
	for _, att := range attachments {
		if limits.MaxFileBytes > 0 && int64(len(att.Data)) > limits.MaxFileBytes {
			return errFileTooLarge(att.FieldName, limits.MaxFileBytes)
		}
		if !mimeTypeAllowed(att.MimeType, limits.AllowedMimeTypes) {
			return errDisallowedMimeType(att.FieldName, att.MimeType)
		}
	}
	return nil
}

func mimeTypeAllowed(mimeType string, allowed []string) bool {
	for _, entry := range allowed {
		if entry == mimeType {
			return true
		}
	}
	return false
}

// appendToLastMessage adds image parts for the given data URLs to the final
// message, converting plain-string content to a part list first. This is the
// placement heuristic for attachments with no explicit file-key match.
func appendToLastMessage(body []byte, dataURLs []string) ([]byte, error) {
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() || len(messages.Array()) == 0 {
		return nil, errNoMessageForAttachment()
	}

	last := len(messages.Array()) - 1
	contentPath := fmt.Sprintf("messages.%d.content", last)
	content := gjson.GetBytes(body, contentPath)

	var parts []Part
	switch {
	case content.IsArray():
		parts = parseParts(content)
	case content.Type == gjson.String:
		parts = []Part{{Type: PartTypeText, Text: content.String()}}
	default:
		parts = nil
	}

	for _, u := range dataURLs {
		parts = append(parts, Part{Type: PartTypeImageURL, URL: u, Detail: DetailAuto})
	}

	out, err := sjson.SetRawBytes(body, contentPath, []byte(marshalParts(parts)))
	if err != nil {
		return nil, fmt.Errorf("error attaching uploaded files: %w", err)
	}
	return out, nil
}
