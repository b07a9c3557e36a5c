/**
 * Vision Client for imagetext
 *
 * Sends a single image to the Google Cloud Vision images:annotate endpoint
 * with one TEXT_DETECTION feature and returns the full-text annotation.
 *
 * Failure mapping:
 * - no API key, transport failure, timeout, non-2xx status,
 *   per-image error object or undecodable body -> ProviderError
 * - well-formed response without fullTextAnnotation.text -> NoTextDetectedError
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/imagetext/imagetext/internal/errors"
	"github.com/imagetext/imagetext/internal/logging"
)

// VisionClient handles communication with the Cloud Vision API
type VisionClient struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	log        *logging.Logger
}

// VisionClientConfig holds client configuration
type VisionClientConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client // optional
	Logger     *logging.Logger
}

// Status is the Google API error object returned with non-2xx responses
type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type errorEnvelope struct {
	Error *Status `json:"error"`
}

// NewVisionClient creates a new Vision client
func NewVisionClient(cfg *VisionClientConfig) *VisionClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &VisionClient{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
		log:        logger,
	}
}

// DetectText runs text detection on a base64-encoded image.
// All returned errors are *errors.ExtractionError.
func (c *VisionClient) DetectText(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", errors.NewProviderError(0, "Vision API key is not configured", nil)
	}

	target, err := c.requestURL()
	if err != nil {
		return "", errors.NewProviderError(0, "invalid Vision endpoint", err)
	}

	image, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", errors.NewProviderError(0, "image payload is not valid base64", err)
	}

	payload, err := NewAnnotateRequest(image)
	if err != nil {
		return "", errors.NewProviderError(0, "failed to marshal annotate request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", errors.NewProviderError(0, "failed to create annotate request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.NewProviderTimeoutError(c.timeout, redactKey(err))
		}
		return "", errors.NewProviderError(0, fmt.Sprintf("Vision request failed after %v", time.Since(startTime)), redactKey(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.NewProviderError(resp.StatusCode, "failed to read Vision response", err)
	}

	c.log.Debug("annotate response", "status", resp.StatusCode, "bytes", len(body), "duration", time.Since(startTime))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.NewProviderError(resp.StatusCode, providerMessage(resp.StatusCode, body), nil)
	}

	first, err := ParseAnnotateResponse(body)
	if err != nil {
		return "", errors.NewProviderError(resp.StatusCode, "malformed Vision response", err)
	}
	if first == nil {
		return "", errors.NewNoTextDetectedError()
	}

	if perr := first.GetError(); perr != nil {
		xerr := errors.NewProviderError(resp.StatusCode, perr.GetMessage(), nil)
		xerr.Details["provider_code"] = perr.GetCode()
		return "", xerr
	}

	text := first.GetFullTextAnnotation().GetText()
	if text == "" {
		return "", errors.NewNoTextDetectedError()
	}

	return text, nil
}

// NewAnnotateRequest builds the images:annotate body for one image with a
// single TEXT_DETECTION feature.
func NewAnnotateRequest(image []byte) ([]byte, error) {
	return protojson.Marshal(&visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_TEXT_DETECTION}},
		}},
	})
}

// ParseAnnotateResponse decodes an images:annotate body and returns its first
// entry, or nil when there are no entries.
func ParseAnnotateResponse(body []byte) (*visionpb.AnnotateImageResponse, error) {
	var batch visionpb.BatchAnnotateImagesResponse
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(body, &batch); err != nil {
		return nil, err
	}
	if len(batch.GetResponses()) == 0 {
		return nil, nil
	}
	return batch.GetResponses()[0], nil
}

func (c *VisionClient) requestURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint %q is not absolute", c.endpoint)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// providerMessage prefers the Google error envelope, then the raw body.
func providerMessage(status int, body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("Vision API returned status %d", status)
	}
	text = truncate(text, 512)
	return fmt.Sprintf("Vision API returned status %d: %s", status, text)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.ToValidUTF8(s[:n], "")
}

// redactKey strips the request URL, which carries the API key, from transport errors.
func redactKey(err error) error {
	var uerr *url.Error
	if stderrors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
