package normalize

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var testLimits = Limits{
	AllowedMimeTypes: []string{"image/png", "image/jpeg"},
	MaxFileBytes:     1024,
	MaxFileCount:     2,
}

func pngAttachment(field string, size int) Attachment {
	return Attachment{
		FieldName: field,
		MimeType:  "image/png",
		Data:      make([]byte, size),
	}
}

func TestMultipart_InvalidPayloadJSON(t *testing.T) {
	_, err := Multipart([]byte(`{"messages":`), nil, testLimits)
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.Status)
	assert.Equal(t, "Invalid JSON in payload field", reqErr.Message)
}

func TestMultipart_EmptyPayloadIsInvalid(t *testing.T) {
	_, err := Multipart(nil, nil, testLimits)
	assert.EqualError(t, err, "Invalid JSON in payload field")
}

func TestMultipart_FileKeySubstitution(t *testing.T) {
	payload := []byte(`{"model":"m1","messages":[{"role":"user","content":[` +
		`{"type":"text","text":"what is in this picture"},` +
		`{"type":"image_file","image_file":{"file_key":"photo1","detail":"high"}}]}]}`)
	att := Attachment{FieldName: "photo1", MimeType: "image/png", Data: []byte{1, 2, 3}}

	out, err := Multipart(payload, []Attachment{att}, testLimits)
	require.NoError(t, err)

	part := gjson.GetBytes(out, "messages.0.content.1")
	assert.Equal(t, "image_url", part.Get("type").String())
	wantURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	assert.Equal(t, wantURL, part.Get("image_url.url").String())
	assert.Equal(t, "high", part.Get("image_url.detail").String())
}

func TestMultipart_UnmatchedKeyRejected(t *testing.T) {
	payload := []byte(`{"model":"m1","messages":[{"role":"user","content":[` +
		`{"type":"image_file","image_file":{"file_key":"missing"}}]}]}`)

	_, err := Multipart(payload, []Attachment{pngAttachment("photo1", 3)}, testLimits)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestMultipart_UnclaimedAppendedToLastMessage(t *testing.T) {
	payload := []byte(`{"model":"m1","messages":[` +
		`{"role":"system","content":"be brief"},` +
		`{"role":"user","content":"look at this"}]}`)

	out, err := Multipart(payload, []Attachment{pngAttachment("file1", 4)}, testLimits)
	require.NoError(t, err)

	// system message untouched
	assert.Equal(t, "be brief", gjson.GetBytes(out, "messages.0.content").String())

	// last message converted from plain text to a part list
	parts := gjson.GetBytes(out, "messages.1.content")
	require.True(t, parts.IsArray())
	assert.Equal(t, "text", parts.Get("0.type").String())
	assert.Equal(t, "look at this", parts.Get("0.text").String())
	assert.Equal(t, "image_url", parts.Get("1.type").String())
	assert.Equal(t, "auto", parts.Get("1.image_url.detail").String())
}

func TestMultipart_UnclaimedKeepsUploadOrder(t *testing.T) {
	payload := []byte(`{"model":"m1","messages":[{"role":"user","content":"see files"}]}`)
	atts := []Attachment{
		{FieldName: "a", MimeType: "image/png", Data: []byte{1}},
		{FieldName: "b", MimeType: "image/jpeg", Data: []byte{2}},
	}

	out, err := Multipart(payload, atts, testLimits)
	require.NoError(t, err)

	first := gjson.GetBytes(out, "messages.0.content.1.image_url.url").String()
	second := gjson.GetBytes(out, "messages.0.content.2.image_url.url").String()
	assert.Contains(t, first, "data:image/png;base64,")
	assert.Contains(t, second, "data:image/jpeg;base64,")
}

func TestMultipart_TooManyFiles(t *testing.T) {
	payload := []byte(`{"model":"m1","messages":[{"role":"user","content":"hi"}]}`)
	atts := []Attachment{pngAttachment("a", 1), pngAttachment("b", 1), pngAttachment("c", 1)}

	_, err := Multipart(payload, atts, testLimits)
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, reqErr.Status)
	assert.Contains(t, reqErr.Message, fmt.Sprintf("%d", testLimits.MaxFileCount))
}

func TestMultipart_FileTooLarge(t *testing.T) {
	payload := []byte(`{"model":"m1","messages":[{"role":"user","content":"hi"}]}`)

	_, err := Multipart(payload, []Attachment{pngAttachment("big", 2048)}, testLimits)
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, reqErr.Status)
	assert.Contains(t, reqErr.Message, `"big"`)
	assert.Contains(t, reqErr.Message, "1024")
}

func TestMultipart_DisallowedMimeType(t *testing.T) {
	payload := []byte(`{"model":"m1","messages":[{"role":"user","content":"hi"}]}`)
	att := Attachment{FieldName: "doc", MimeType: "application/pdf", Data: []byte{1}}

	_, err := Multipart(payload, []Attachment{att}, testLimits)
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.Status)
	assert.Contains(t, reqErr.Message, "application/pdf")
}

func TestMultipart_NoMessagesForAttachment(t *testing.T) {
	payload := []byte(`{"model":"m1","messages":[]}`)

	_, err := Multipart(payload, []Attachment{pngAttachment("a", 1)}, testLimits)
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.Status)
}

func TestMultipart_NoAttachmentsStillNormalizes(t *testing.T) {
	payload := []byte(`{"model":"m1","messages":[{"role":"user","content":[` +
		`{"type":"image_url","image_url":"https://example.com/a.gif"}]}]}`)

	out, err := Multipart(payload, nil, testLimits)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.gif", gjson.GetBytes(out, "messages.0.content.0.image_url.url").String())
	assert.Equal(t, "auto", gjson.GetBytes(out, "messages.0.content.0.image_url.detail").String())
}

func TestMultipart_UnknownPayloadFieldsPreserved(t *testing.T) {
	payload := []byte(`{"model":"m1","seed":42,"messages":[{"role":"user","content":"hi"}]}`)

	out, err := Multipart(payload, []Attachment{pngAttachment("a", 1)}, testLimits)
	require.NoError(t, err)
	assert.Equal(t, int64(42), gjson.GetBytes(out, "seed").Int())
}
