// Package enrich is the HTTP client for the external enrichment service.
//
// The service performs extraction (OCR/transcription), translation, grammar
// analysis, and speech synthesis, then reports back through the webhook. It is
// a collaborator: this package only triggers it and defines the wire contract.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Job is the descriptor sent to the enrichment service's trigger endpoint.
type Job struct {
	PhraseID       string `json:"phrase_id"`
	SourceKind     string `json:"source_kind"`
	FileURL        string `json:"file_url,omitempty"`
	SourceText     string `json:"source_text,omitempty"`
	Language       string `json:"language,omitempty"`
	CallbackURL    string `json:"callback_url"`
	JobID          string `json:"job_id"`
	CallbackSecret string `json:"callback_secret"`
	AudioOnly      bool   `json:"audio_only,omitempty"`
}

// Result is the derived content delivered back by the service on success.
type Result struct {
	SourceText      string       `json:"source_text"`
	Transliteration string       `json:"transliteration"`
	Translation     string       `json:"translation"`
	GrammarNotes    string       `json:"grammar_notes"`
	Vocab           []VocabItem  `json:"vocab_breakdown"`
	Language        string       `json:"detected_language"`
	Confidence      float64      `json:"language_confidence"`
	AudioURL        string       `json:"audio_url,omitempty"`
	AudioData       string       `json:"audio_data,omitempty"` // base64 MP3 bytes
}

// VocabItem mirrors one entry of the grammar breakdown on the wire.
type VocabItem struct {
	Word       string `json:"word"`
	Root       string `json:"root"`
	Meaning    string `json:"meaning"`
	Gender     string `json:"gender"`
	Declension string `json:"declension"`
	Notes      string `json:"notes"`
}

// DispatchError reports that the trigger call itself failed. The caller must
// roll the job slot back; the service will never call back for this job.
type DispatchError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("enrichment dispatch failed: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("enrichment dispatch failed: %s", e.Message)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// Client triggers enrichment jobs.
type Client struct {
	triggerURL string
	httpClient *http.Client
}

// NewClient returns a client for the given trigger URL.
func NewClient(triggerURL string) *Client {
	return &Client{
		triggerURL: triggerURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Dispatch POSTs the job descriptor. Any transport failure or non-2xx response
// is a *DispatchError.
func (c *Client) Dispatch(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return &DispatchError{Message: "failed to encode job descriptor", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.triggerURL, bytes.NewReader(body))
	if err != nil {
		return &DispatchError{Message: "failed to build trigger request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &DispatchError{Message: "trigger request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DispatchError{StatusCode: resp.StatusCode, Message: string(msg)}
	}
	return nil
}
