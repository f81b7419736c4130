package proxy

import (
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/infergate/infergate/proxy/config"
	"github.com/infergate/infergate/proxy/normalize"
	"github.com/tidwall/gjson"
)

// chatCompletionsHandler normalizes the inbound request into canonical form
// and relays it, buffered or streamed according to the request's own stream
// flag. Encoding dispatch is structural: the content type alone decides
// between the multipart and JSON paths.
func (gw *Gateway) chatCompletionsHandler(c *gin.Context) {
	const operation = "chat completion"

	var canonical []byte
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		canonical, err = gw.normalizeMultipartRequest(c)
	} else {
		canonical, err = gw.normalizeJSONRequest(c)
	}
	if err != nil {
		gw.translateError(c, operation, err)
		return
	}

	if gjson.GetBytes(canonical, "stream").Bool() {
		gw.metrics.activeStreams.Inc()
		defer gw.metrics.activeStreams.Dec()

		start := time.Now()
		err := gw.relay.ForwardStream(c.Request.Context(), gw.config.Upstream.ChatPath, canonical, c.Writer)
		gw.metrics.observeUpstream(c.Request.URL.Path, time.Since(start))
		if err != nil {
			gw.translateError(c, operation, err)
		}
		return
	}

	gw.forwardBuffered(c, operation, http.MethodPost, gw.config.Upstream.ChatPath, canonical)
}

func (gw *Gateway) normalizeJSONRequest(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, &normalize.RequestError{Status: http.StatusBadRequest, Message: "Could not read request body"}
	}
	return normalize.ChatBody(body)
}

func (gw *Gateway) normalizeMultipartRequest(c *gin.Context) ([]byte, error) {
	if err := c.Request.ParseMultipartForm(config.DefaultMultipartMemory); err != nil {
		return nil, &normalize.RequestError{Status: http.StatusBadRequest, Message: "Invalid multipart form data"}
	}

	payload := c.Request.FormValue(gw.config.Uploads.PayloadField)
	attachments, err := collectAttachments(c.Request)
	if err != nil {
		return nil, err
	}

	return normalize.Multipart([]byte(payload), attachments, normalize.Limits{
		AllowedMimeTypes: gw.config.Uploads.AllowedMimeTypes,
		MaxFileBytes:     gw.config.Uploads.MaxFileBytes,
		MaxFileCount:     gw.config.Uploads.MaxFileCount,
	})
}

// collectAttachments reads every uploaded file into a request-scoped buffer,
// in a stable field order. The bytes live only until the response is written.
func collectAttachments(r *http.Request) ([]normalize.Attachment, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(r.MultipartForm.File))
	for field := range r.MultipartForm.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var attachments []normalize.Attachment
	for _, field := range fields {
		for _, header := range r.MultipartForm.File[field] {
			file, err := header.Open()
			if err != nil {
				return nil, &normalize.RequestError{Status: http.StatusBadRequest, Message: "Invalid multipart form data"}
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return nil, &normalize.RequestError{Status: http.StatusBadRequest, Message: "Invalid multipart form data"}
			}

			mimeType := header.Header.Get("Content-Type")
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}
			attachments = append(attachments, normalize.Attachment{
				FieldName: field,
				MimeType:  mimeType,
				Data:      data,
			})
		}
	}
	return attachments, nil
}

// embeddingsHandler is a buffered pass-through: same credential substitution
// and timeout as the chat route, no content transformation.
func (gw *Gateway) embeddingsHandler(c *gin.Context) {
	const operation = "embeddings"

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		gw.translateError(c, operation, &normalize.RequestError{Status: http.StatusBadRequest, Message: "Could not read request body"})
		return
	}
	gw.forwardBuffered(c, operation, http.MethodPost, gw.config.Upstream.EmbeddingsPath, body)
}

func (gw *Gateway) listModelsHandler(c *gin.Context) {
	gw.forwardBuffered(c, "model listing", http.MethodGet, gw.config.Upstream.ModelsPath, nil)
}

func (gw *Gateway) forwardBuffered(c *gin.Context, operation, method, path string, body []byte) {
	start := time.Now()
	status, respBody, err := gw.relay.ForwardBuffered(c.Request.Context(), method, path, body)
	gw.metrics.observeUpstream(c.Request.URL.Path, time.Since(start))
	if err != nil {
		gw.translateError(c, operation, err)
		return
	}
	c.Data(status, "application/json", respBody)
}
