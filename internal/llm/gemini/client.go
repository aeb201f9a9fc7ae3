// Package gemini implements llm.StructuredExtractor against the Gemini
// file + generateContent HTTP API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"casetrace/internal/llm"
)

const maxErrBody = 2048

// Extract uploads the document, then asks the model for structured JSON
// matching schema. Upload and generate are retried independently under the
// shared policy, each bounded by its own wall-clock deadline.
func (c *Client) Extract(ctx context.Context, documentPath, instruction string, schema map[string]any) (json.RawMessage, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"document", documentPath,
	)

	fileURI, err := c.upload(ctx, rid, documentPath)
	if err != nil {
		c.logger.Error("llm.extract.upload_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	c.logger.Info("llm.extract.uploaded", "req_id", rid, "file_uri", fileURI)

	raw, err := c.generate(ctx, rid, fileURI, instruction, schema)
	if err != nil {
		c.logger.Error("llm.extract.generate_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, nil
}

// upload registers the document with the service and returns its opaque file
// reference.
func (c *Client) upload(ctx context.Context, rid, documentPath string) (string, error) {
	data, err := os.ReadFile(documentPath)
	if err != nil {
		return "", &llm.ExtractionError{Reason: llm.ReasonUpstream, Op: "upload", Err: err}
	}

	uctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/upload/v1beta/files?uploadType=media&key=" + c.cfg.APIKey

	var fileURI string
	err = c.cfg.Retry.Do(uctx, c.logger, "upload", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/pdf")
		req.Header.Set("X-Goog-Upload-Protocol", "raw")

		body, err := c.do(req, rid, "upload")
		if err != nil {
			return err
		}

		var out struct {
			File struct {
				Name string `json:"name"`
				URI  string `json:"uri"`
			} `json:"file"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("decode upload response: %w", err)
		}
		if out.File.URI != "" {
			fileURI = out.File.URI
			return nil
		}
		if out.File.Name != "" {
			fileURI = out.File.Name
			return nil
		}
		return fmt.Errorf("upload response missing file reference")
	})
	if err != nil {
		return "", err
	}
	return fileURI, nil
}

// generate asks the model for JSON matching schema, using the uploaded file as
// context. A response that fails to parse as JSON is retried within the same
// attempt budget; a parsed response that violates the schema is terminal.
func (c *Client) generate(ctx context.Context, rid, fileURI, instruction string, schema map[string]any) (json.RawMessage, error) {
	gctx, cancel := context.WithTimeout(ctx, c.cfg.GenerateTimeout)
	defer cancel()

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1beta/models/" + c.cfg.Model + ":generateContent?key=" + c.cfg.APIKey

	reqBody := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]any{
				{"file_data": map[string]any{"file_uri": fileURI, "mime_type": "application/pdf"}},
				{"text": buildPrompt(instruction, schema)},
			},
		}},
		"generationConfig": map[string]any{
			"responseMimeType": "application/json",
			"temperature":      0.1,
			"maxOutputTokens":  8192,
		},
	}

	var result json.RawMessage
	err := c.cfg.Retry.Do(gctx, c.logger, "generate", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		bs, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		body, err := c.do(req, rid, "generate")
		if err != nil {
			return err
		}

		var out struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("decode generate response: %w", err)
		}
		if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
			return fmt.Errorf("empty response from model")
		}
		text := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
		if text == "" {
			return fmt.Errorf("empty response from model")
		}

		var probe any
		if err := json.Unmarshal([]byte(text), &probe); err != nil {
			return &llm.InvalidJSONError{Err: err}
		}
		if err := llm.ValidateJSONAgainstSchema(schema, []byte(text)); err != nil {
			return &llm.ExtractionError{Reason: llm.ReasonInvalidResponse, Op: "generate", Err: err}
		}
		result = json.RawMessage(text)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// do executes one HTTP attempt and returns the response body, mapping non-2xx
// statuses to llm.StatusError for retry classification.
func (c *Client) do(req *http.Request, rid, op string) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("llm.http.body_close_error", "req_id", rid, "op", op, "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("llm.http.response",
		"req_id", rid,
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > maxErrBody {
			snippet = snippet[:maxErrBody]
		}
		return nil, &llm.StatusError{Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func buildPrompt(instruction string, schema map[string]any) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nRespond EXACTLY in the JSON format specified below.\n\nExpected schema:\n")
	b.WriteString(mustJSON(schema))
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
