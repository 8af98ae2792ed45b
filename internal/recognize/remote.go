package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of an API response is read. Transcripts
// are tiny; anything near this limit is a misbehaving server.
const maxResponseBytes = 10 << 20

// remoteBackend calls an HTTP transcription API that shares a filesystem
// with this process. The audio travels by path, not by upload.
type remoteBackend struct {
	url    string
	client *http.Client
}

func newRemoteBackend(url string, timeout time.Duration) *remoteBackend {
	return &remoteBackend{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (b *remoteBackend) Name() string { return backendRemote }

// apiRequest is the transcription request body.
type apiRequest struct {
	AudioFile string `json:"audio_file"`
	Language  string `json:"language"`
	Model     string `json:"model"`
}

// apiResponse is the response envelope. Servers answer with either a "text"
// string or a "result" that is a string or an array of string chunks.
type apiResponse struct {
	Text   json.RawMessage `json:"text"`
	Result json.RawMessage `json:"result"`
}

func (b *remoteBackend) Transcribe(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(apiRequest{
		AudioFile: req.AudioPath,
		Language:  req.Language,
		Model:     "whisper-" + req.ModelSize,
	})
	if err != nil {
		return nil, newError(CategoryRemoteTransport, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return nil, newError(CategoryRemoteTransport, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newError(CategoryRemoteTransport, "transcription request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newError(CategoryRemoteTransport, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("API error (status %d): %s", resp.StatusCode, snippet(body))
		return nil, newError(CategoryRemoteTransport, msg, nil)
	}

	text, err := parseTranscript(body)
	if err != nil {
		return nil, newError(CategoryRemoteParse, "unreadable API response", err)
	}
	return &Result{Text: text}, nil
}

// parseTranscript pulls the transcript out of the response envelope. A
// well-formed envelope with an empty transcript is a valid empty result.
func parseTranscript(body []byte) (string, error) {
	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return "", err
	}

	// A JSON null unmarshals into a string or slice as a silent no-op, so
	// treat it the same as an absent field.
	if len(env.Text) > 0 && string(env.Text) != "null" {
		var s string
		if err := json.Unmarshal(env.Text, &s); err == nil {
			return strings.TrimSpace(s), nil
		}
	}
	if len(env.Result) > 0 && string(env.Result) != "null" {
		var chunks []string
		if err := json.Unmarshal(env.Result, &chunks); err == nil {
			return strings.TrimSpace(strings.Join(chunks, "")), nil
		}
		var s string
		if err := json.Unmarshal(env.Result, &s); err == nil {
			return strings.TrimSpace(s), nil
		}
	}
	return "", errors.New(`response has no usable "text" or "result" field`)
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
