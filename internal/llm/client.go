package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StreamClient define la interfaz para generar respuestas en streaming.
// onFragment recibe cada delta de texto en orden; si devuelve error el stream
// se corta y GenerateStream lo propaga.
type StreamClient interface {
	GenerateStream(ctx context.Context, prompt string, onFragment func(string) error) error
}

var (
	// ErrMissingCredential indica que no hay API key configurada; fatal antes de streamear.
	ErrMissingCredential = errors.New("llm api key not configured")
	// ErrUpstreamQuota indica que el proveedor rechazo por cuota o rate limit.
	ErrUpstreamQuota = errors.New("llm quota exceeded")
	// ErrContentRejected indica que el proveedor rechazo el prompt por filtro de contenido.
	ErrContentRejected = errors.New("llm content rejected")
)

// HTTPClient implementa StreamClient contra una API OpenAI-compatible.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient construye un cliente apuntando a la API de chat completions.
func NewHTTPClient(baseURL, apiKey, model string, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logger,
	}
}

// GenerateStream lanza una chat completion con stream:true y entrega cada
// fragmento de texto al callback. La concatenacion de los fragmentos es la
// respuesta completa del modelo; ningun limite de fragmento significa nada.
func (c *HTTPClient) GenerateStream(ctx context.Context, prompt string, onFragment func(string) error) error {
	if strings.TrimSpace(c.apiKey) == "" {
		return ErrMissingCredential
	}

	reqBody := chatRequest{
		Model:  c.model,
		Stream: true,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.classifyHTTPError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Un frame ilegible no tira el stream; los siguientes pueden venir bien.
			c.logger.Warn("skipping malformed stream frame", zap.Error(err))
			continue
		}
		if chunk.Error != nil {
			return classifyAPIError(chunk.Error)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason == "content_filter" {
			return ErrContentRejected
		}
		if choice.Delta.Content == "" {
			continue
		}
		if err := onFragment(choice.Delta.Content); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}

	return nil
}

func (c *HTTPClient) classifyHTTPError(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	c.logger.Warn("llm error response",
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", respBody),
	)

	var er struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(respBody, &er); err == nil && er.Error != nil {
		if classified := classifyAPIError(er.Error); classified != nil {
			return classified
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrUpstreamQuota
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrMissingCredential
	}
	return fmt.Errorf("llm http error: status=%d", resp.StatusCode)
}

func classifyAPIError(e *apiError) error {
	switch e.Code {
	case "insufficient_quota", "rate_limit_exceeded":
		return ErrUpstreamQuota
	case "content_filter", "content_policy_violation":
		return ErrContentRejected
	case "invalid_api_key":
		return ErrMissingCredential
	}
	if e.Message != "" {
		return fmt.Errorf("llm api error: %s", e.Message)
	}
	return nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}
