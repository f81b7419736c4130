package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/infergate/infergate/proxy/config"
)

type UpstreamErrorKind int

const (
	// UpstreamHTTPError: the upstream answered with a 4xx/5xx status.
	UpstreamHTTPError UpstreamErrorKind = iota
	// UpstreamNoResponse: timeout or connection failure before any response.
	UpstreamNoResponse
	// UpstreamTransportFailure: the outbound request could not be built.
	UpstreamTransportFailure
)

// UpstreamError captures everything the relay knows about a failed upstream
// call. It is consumed by the error translator and never serialized to the
// caller.
type UpstreamError struct {
	Kind   UpstreamErrorKind
	Status int
	Body   []byte
	Err    error
}

func (e *UpstreamError) Error() string {
	switch e.Kind {
	case UpstreamHTTPError:
		return fmt.Sprintf("upstream returned status %d", e.Status)
	case UpstreamNoResponse:
		return fmt.Sprintf("no response from upstream: %v", e.Err)
	default:
		return fmt.Sprintf("upstream transport setup failed: %v", e.Err)
	}
}

// Relay issues outbound requests to the one configured upstream, always
// substituting the service credential for whatever the caller sent. The
// client timeout bounds connect and first byte only; streamed bodies are
// unbounded.
type Relay struct {
	baseURL    string
	credential string
	client     *http.Client
	logger     *LogMonitor
}

func NewRelay(cfg config.UpstreamConfig, logger *LogMonitor) *Relay {
	transport := &http.Transport{
		ResponseHeaderTimeout: cfg.Timeout(),
	}
	return &Relay{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		credential: cfg.APIKey,
		client:     &http.Client{Transport: transport},
		logger:     logger,
	}
}

func (rl *Relay) do(ctx context.Context, method, path string, body []byte, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rl.baseURL+path, reader)
	if err != nil {
		return nil, &UpstreamError{Kind: UpstreamTransportFailure, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Authorization", "Bearer "+rl.credential)

	resp, err := rl.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Kind: UpstreamNoResponse, Err: err}
	}
	return resp, nil
}

// ForwardBuffered performs a buffered-mode call: the full upstream body is
// collected and returned for verbatim forwarding. A 4xx/5xx upstream status
// comes back as an UpstreamError carrying the (never forwarded) body.
func (rl *Relay) ForwardBuffered(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	resp, err := rl.do(ctx, method, path, body, "application/json")
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &UpstreamError{Kind: UpstreamNoResponse, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, nil, &UpstreamError{Kind: UpstreamHTTPError, Status: resp.StatusCode, Body: respBody}
	}
	return resp.StatusCode, respBody, nil
}

// ForwardStream performs a streaming-mode call. Event-stream headers are
// committed before the first upstream byte, then bytes are piped to the
// caller in order with a flush per read. Once headers are committed a broken
// stream can only be logged, not translated, so only pre-commit failures
// return an error.
func (rl *Relay) ForwardStream(ctx context.Context, path string, body []byte, w http.ResponseWriter) error {
	resp, err := rl.do(ctx, http.MethodPost, path, body, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(resp.Body)
		return &UpstreamError{Kind: UpstreamHTTPError, Status: resp.StatusCode, Body: respBody}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// prevent nginx from buffering SSE
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	started := time.Now()
	written, copyErr := rl.pipe(w, flusher, resp.Body)
	if copyErr != nil {
		// Either the caller went away or the upstream stream broke. The
		// upstream connection is closed by the deferred Body.Close.
		rl.logger.Warnf("stream to caller ended early after %d bytes in %v: %v", written, time.Since(started), copyErr)
	}
	return nil
}

// pipe copies upstream bytes to the caller with direct-pipe semantics: each
// chunk is written and flushed before the next upstream read, so a slow
// caller connection holds back upstream reads.
func (rl *Relay) pipe(w io.Writer, flusher http.Flusher, body io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			wn, writeErr := w.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
