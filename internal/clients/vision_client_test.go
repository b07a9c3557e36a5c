package clients

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/imagetext/imagetext/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *VisionClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewVisionClient(&VisionClientConfig{
		Endpoint: srv.URL + "/v1/images:annotate",
		APIKey:   "test-key",
		Timeout:  2 * time.Second,
	})
}

func TestDetectTextSendsAnnotateRequest(t *testing.T) {
	var got visionpb.BatchAnnotateImagesRequest
	var raw map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/images:annotate", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, protojson.Unmarshal(body, &got))
		require.NoError(t, json.Unmarshal(body, &raw))

		_, _ = io.WriteString(w, `{"responses":[{"fullTextAnnotation":{"text":"Hello"}}]}`)
	})

	text, err := client.DetectText(context.Background(), "aGVsbG8=")
	require.NoError(t, err)
	require.Equal(t, "Hello", text)

	require.Len(t, got.GetRequests(), 1)
	req := got.GetRequests()[0]
	require.Equal(t, []byte("hello"), req.GetImage().GetContent())
	require.Len(t, req.GetFeatures(), 1)
	require.Equal(t, visionpb.Feature_TEXT_DETECTION, req.GetFeatures()[0].GetType())

	// On the wire the content stays the caller's base64 string.
	wire := raw["requests"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "aGVsbG8=", wire["image"].(map[string]interface{})["content"])
	require.Equal(t, "TEXT_DETECTION", wire["features"].([]interface{})[0].(map[string]interface{})["type"])
}

func TestDetectTextFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantStatus int
		wantMsg    string
	}{
		{
			name:    "empty response entry",
			status:  http.StatusOK,
			body:    `{"responses":[{}]}`,
			wantErr: errors.ErrNoTextDetected,
		},
		{
			name:    "no response entries",
			status:  http.StatusOK,
			body:    `{}`,
			wantErr: errors.ErrNoTextDetected,
		},
		{
			name:    "empty text",
			status:  http.StatusOK,
			body:    `{"responses":[{"fullTextAnnotation":{"text":""}}]}`,
			wantErr: errors.ErrNoTextDetected,
		},
		{
			name:       "forbidden",
			status:     http.StatusForbidden,
			body:       `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`,
			wantErr:    errors.ErrProvider,
			wantStatus: http.StatusForbidden,
			wantMsg:    "API key not valid",
		},
		{
			name:       "plain text server error",
			status:     http.StatusBadGateway,
			body:       "upstream down",
			wantErr:    errors.ErrProvider,
			wantStatus: http.StatusBadGateway,
			wantMsg:    "Vision API returned status 502: upstream down",
		},
		{
			name:       "per image error",
			status:     http.StatusOK,
			body:       `{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`,
			wantErr:    errors.ErrProvider,
			wantStatus: http.StatusOK,
			wantMsg:    "Bad image data.",
		},
		{
			name:       "empty per image error",
			status:     http.StatusOK,
			body:       `{"responses":[{"error":{}}]}`,
			wantErr:    errors.ErrProvider,
			wantStatus: http.StatusOK,
			wantMsg:    "OCR provider request failed",
		},
		{
			name:       "error alongside unknown fields",
			status:     http.StatusOK,
			body:       `{"responses":[{"error":{"code":13,"message":"Internal"},"context":{"uri":"x"}}],"extra":true}`,
			wantErr:    errors.ErrProvider,
			wantStatus: http.StatusOK,
			wantMsg:    "Internal",
		},
		{
			name:       "malformed body",
			status:     http.StatusOK,
			body:       `{"responses":`,
			wantErr:    errors.ErrProvider,
			wantStatus: http.StatusOK,
			wantMsg:    "malformed Vision response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			text, err := client.DetectText(context.Background(), "aGVsbG8=")
			require.Empty(t, text)
			require.ErrorIs(t, err, tt.wantErr)

			var xerr *errors.ExtractionError
			require.True(t, stderrors.As(err, &xerr))
			if tt.wantErr == errors.ErrProvider {
				require.Equal(t, tt.wantStatus, xerr.Status)
				require.Equal(t, tt.wantMsg, xerr.Message)
			}
		})
	}
}

func TestDetectTextPerImageErrorCarriesProviderCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`)
	})

	_, err := client.DetectText(context.Background(), "aGVsbG8=")
	var xerr *errors.ExtractionError
	require.True(t, stderrors.As(err, &xerr))
	require.Equal(t, int32(3), xerr.Details["provider_code"])
}

func TestDetectTextRejectsInvalidPayload(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.DetectText(context.Background(), "not base64!")
	require.ErrorIs(t, err, errors.ErrProvider)
	require.False(t, called)
}

func TestProviderMessageKeepsValidUTF8(t *testing.T) {
	body := []byte(strings.Repeat("a", 511) + "é tail")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(body)
	})

	_, err := client.DetectText(context.Background(), "aGVsbG8=")
	var xerr *errors.ExtractionError
	require.True(t, stderrors.As(err, &xerr))
	require.True(t, utf8.ValidString(xerr.Message))
	require.Equal(t, "Vision API returned status 500: "+strings.Repeat("a", 511), xerr.Message)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab", truncate("abc", 2))
	require.Equal(t, "a", truncate("aé", 2))
	require.Equal(t, "aé", truncate("aéb", 3))
	require.Equal(t, "", truncate("日本", 2))
}

func TestDetectTextMissingKeyDoesNotCallProvider(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewVisionClient(&VisionClientConfig{Endpoint: srv.URL})
	_, err := client.DetectText(context.Background(), "aGVsbG8=")
	require.ErrorIs(t, err, errors.ErrProvider)
	require.False(t, called)
}

func TestDetectTextTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewVisionClient(&VisionClientConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Timeout:  50 * time.Millisecond,
	})

	_, err := client.DetectText(context.Background(), "aGVsbG8=")
	require.ErrorIs(t, err, errors.ErrProvider)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotContains(t, err.Error(), "test-key")
}

func TestDetectTextTransportErrorRedactsKey(t *testing.T) {
	client := NewVisionClient(&VisionClientConfig{
		Endpoint: "http://127.0.0.1:1/v1/images:annotate",
		APIKey:   "super-secret",
		Timeout:  time.Second,
	})

	_, err := client.DetectText(context.Background(), "aGVsbG8=")
	require.ErrorIs(t, err, errors.ErrProvider)
	require.NotContains(t, err.Error(), "super-secret")
}
