package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/config"
)

const (
	maxResponseBytes = 32 << 20
	outputSize       = "1024x1024"
	variationModel   = "dall-e-2"
)

// ErrGeneration wraps every failure of the image API.
var ErrGeneration = errors.New("image generation failed")

// Generator turns a square PNG into a styled image.
type Generator interface {
	Generate(ctx context.Context, squarePNG []byte, prompt string) ([]byte, error)
}

// OpenAIClient calls the OpenAI images API. dall-e-2 only supports prompt-less
// variations; other models use the edits endpoint with the style prompt.
type OpenAIClient struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

func NewOpenAIClient(cfg config.ImageGen) *OpenAIClient {
	return &OpenAIClient{
		APIKey:     cfg.APIKey,
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		Model:      cfg.Model,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type imagesResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) Generate(ctx context.Context, squarePNG []byte, prompt string) ([]byte, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not configured", ErrGeneration)
	}

	endpoint := "/images/edits"
	fields := map[string]string{"model": c.Model, "n": "1", "size": outputSize, "prompt": prompt}
	if c.Model == "" || c.Model == variationModel {
		endpoint = "/images/variations"
		fields = map[string]string{"model": variationModel, "n": "1", "size": outputSize, "response_format": "b64_json"}
		log.Debugf("[ImageGen] Variation request, prompt not sent: %s", prompt)
	}

	body, contentType, err := buildMultipart(squarePNG, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGeneration, err)
	}

	var parsed imagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: status %d: invalid response", ErrGeneration, resp.StatusCode)
	}
	if resp.StatusCode >= 300 || parsed.Error != nil {
		msg := "unknown error"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, msg)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrGeneration)
	}
	log.Infof("[ImageGen] %s returned after %s", endpoint, time.Since(start).Round(time.Millisecond))

	item := parsed.Data[0]
	if item.B64JSON != "" {
		img, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: decode b64_json: %v", ErrGeneration, err)
		}
		return img, nil
	}
	if item.URL != "" {
		return c.download(ctx, item.URL)
	}
	return nil, fmt.Errorf("%w: response carries no image", ErrGeneration)
}

func (c *OpenAIClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download: HTTP %d", ErrGeneration, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

func buildMultipart(png []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="image.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(png); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
