package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Snogger/ai-hairstyle-plugin/internal/transport"
)

type ErrorKind string

const (
	KindMissingCredential ErrorKind = "missing_credential"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindTransport         ErrorKind = "transport"
)

type APIError struct {
	Kind ErrorKind
	Err  error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: %s: %v", e.Kind, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Blob is an in-memory image payload.
type Blob struct {
	Data     []byte
	MimeType string
}

type Options struct {
	APIKey        string
	BaseURL       string
	APIVersion    string
	DescribeModel string
	ImageModel    string
	Transport     *transport.Client
	Logger        *slog.Logger
}

// Client speaks to the multimodal endpoints: generateContent for vision
// descriptions and predict for image synthesis.
type Client struct {
	apiKey        string
	baseURL       string
	apiVersion    string
	describeModel string
	imageModel    string
	transport     *transport.Client
	logger        *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	describeModel := strings.TrimSpace(opts.DescribeModel)
	if describeModel == "" {
		describeModel = "gemini-1.5-flash"
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = "imagen-3.0-generate-002"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:        strings.TrimSpace(opts.APIKey),
		baseURL:       baseURL,
		apiVersion:    apiVersion,
		describeModel: describeModel,
		imageModel:    imageModel,
		transport:     opts.Transport,
		logger:        logger,
	}
}

// Describe sends the image with an instruction prompt and returns the first
// candidate's text.
func (c *Client) Describe(ctx context.Context, image Blob, instruction string) (string, error) {
	if c.apiKey == "" {
		return "", &APIError{Kind: KindMissingCredential, Err: errors.New("api key is not set")}
	}
	if len(image.Data) == 0 {
		return "", &APIError{Kind: KindMalformedResponse, Err: errors.New("empty image")}
	}

	req := generateContentRequest{
		Contents: []content{
			{
				Parts: []part{
					{Text: instruction},
					{InlineData: &inlineData{
						MimeType: image.MimeType,
						Data:     base64.StdEncoding.EncodeToString(image.Data),
					}},
				},
			},
		},
	}

	raw, err := c.transport.PostJSON(ctx, c.endpoint(c.describeModel, "generateContent"), req)
	if err != nil {
		return "", wrapTransport(err)
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &APIError{Kind: KindMalformedResponse, Err: fmt.Errorf("decode response: %w", err)}
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", &APIError{Kind: KindMalformedResponse, Err: errors.New("no candidates in response")}
	}
	text := strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", &APIError{Kind: KindMalformedResponse, Err: errors.New("first part has no text")}
	}

	return text, nil
}

// Synthesize submits a single-sample prediction request and returns the
// decoded image bytes.
func (c *Client) Synthesize(ctx context.Context, prompt string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, &APIError{Kind: KindMissingCredential, Err: errors.New("api key is not set")}
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt is empty")
	}

	req := predictRequest{
		Instances:  []instance{{Prompt: prompt}},
		Parameters: predictParameters{SampleCount: 1},
	}

	raw, err := c.transport.PostJSON(ctx, c.endpoint(c.imageModel, "predict"), req)
	if err != nil {
		return nil, wrapTransport(err)
	}

	var decoded predictResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &APIError{Kind: KindMalformedResponse, Err: fmt.Errorf("decode response: %w", err)}
	}

	if len(decoded.Predictions) == 0 || decoded.Predictions[0].BytesBase64Encoded == "" {
		return nil, &APIError{Kind: KindMalformedResponse, Err: errors.New("no predictions in response")}
	}

	data, err := base64.StdEncoding.DecodeString(decoded.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, &APIError{Kind: KindMalformedResponse, Err: fmt.Errorf("decode image: %w", err)}
	}

	return data, nil
}

// endpoint builds the model URL. The key is sent as a header by the
// transport, keeping URLs safe to log.
func (c *Client) endpoint(model, verb string) string {
	return fmt.Sprintf("%s/%s/models/%s:%s", c.baseURL, c.apiVersion, model, verb)
}

func wrapTransport(err error) error {
	return &APIError{Kind: KindTransport, Err: err}
}
