package recognize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseTranscript(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "text_field", body: `{"text": "hello world"}`, want: "hello world"},
		{name: "text_trimmed", body: `{"text": "  padded  "}`, want: "padded"},
		{name: "text_empty", body: `{"text": ""}`, want: ""},
		{name: "result_array", body: `{"result": ["a", "b", "c"]}`, want: "abc"},
		{name: "result_string", body: `{"result": "joined"}`, want: "joined"},
		{name: "result_empty_array", body: `{"result": []}`, want: ""},
		{name: "text_wins_over_result", body: `{"text": "t", "result": ["r"]}`, want: "t"},
		{name: "non_string_text_falls_back", body: `{"text": 5, "result": ["r"]}`, want: "r"},
		{name: "no_recognized_fields", body: `{"status": "ok"}`, wantErr: true},
		{name: "null_text_only", body: `{"text": null}`, wantErr: true},
		{name: "not_json", body: `<html>oops</html>`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTranscript([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseTranscript = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTranscript: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseTranscript = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteTranscribe(t *testing.T) {
	req := Request{AudioPath: "/audio/clip.wav", Language: "auto", ModelSize: "small"}

	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var body apiRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if body.AudioFile != "/audio/clip.wav" {
				t.Errorf("audio_file = %q, want /audio/clip.wav", body.AudioFile)
			}
			if body.Language != "auto" {
				t.Errorf("language = %q, want auto", body.Language)
			}
			if body.Model != "whisper-small" {
				t.Errorf("model = %q, want whisper-small", body.Model)
			}
			w.Write([]byte(`{"text": "transcribed text"}`))
		}))
		defer srv.Close()

		b := newRemoteBackend(srv.URL, 5*time.Second)
		res, err := b.Transcribe(context.Background(), req)
		if err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
		if res.Text != "transcribed text" {
			t.Errorf("Text = %q, want %q", res.Text, "transcribed text")
		}
	})

	t.Run("server_error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model crashed", http.StatusInternalServerError)
		}))
		defer srv.Close()

		b := newRemoteBackend(srv.URL, 5*time.Second)
		_, err := b.Transcribe(context.Background(), req)
		if got := CategoryOf(err); got != CategoryRemoteTransport {
			t.Fatalf("category = %q, want %q (err: %v)", got, CategoryRemoteTransport, err)
		}
		if !strings.Contains(err.Error(), "500") {
			t.Errorf("error %q does not mention status code", err)
		}
	})

	t.Run("unparseable_response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>not json</html>"))
		}))
		defer srv.Close()

		b := newRemoteBackend(srv.URL, 5*time.Second)
		_, err := b.Transcribe(context.Background(), req)
		if got := CategoryOf(err); got != CategoryRemoteParse {
			t.Fatalf("category = %q, want %q (err: %v)", got, CategoryRemoteParse, err)
		}
	})

	t.Run("missing_transcript_fields", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status": "done"}`))
		}))
		defer srv.Close()

		b := newRemoteBackend(srv.URL, 5*time.Second)
		_, err := b.Transcribe(context.Background(), req)
		if got := CategoryOf(err); got != CategoryRemoteParse {
			t.Fatalf("category = %q, want %q (err: %v)", got, CategoryRemoteParse, err)
		}
	})

	t.Run("connection_refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		b := newRemoteBackend(url, time.Second)
		_, err := b.Transcribe(context.Background(), req)
		if got := CategoryOf(err); got != CategoryRemoteTransport {
			t.Fatalf("category = %q, want %q (err: %v)", got, CategoryRemoteTransport, err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		b := newRemoteBackend(srv.URL, 30*time.Second)
		_, err := b.Transcribe(ctx, req)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		if CategoryOf(err) != "" {
			t.Errorf("cancellation classified as %q, want unclassified", CategoryOf(err))
		}
	})
}
