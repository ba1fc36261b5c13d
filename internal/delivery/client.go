// Package delivery performs session-server calls and answer delivery.
package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rbright/viva/internal/exam"
	"github.com/rbright/viva/internal/status"
	"github.com/rbright/viva/internal/version"
)

var (
	// ErrProtocol marks responses that are malformed or missing required fields.
	ErrProtocol = errors.New("protocol error")
	// ErrRejected marks uploads the server answered with an error string.
	ErrRejected = errors.New("upload rejected")
)

const maxResponseBytes = 32 << 20

// Prompt is one fetched question prompt in its transport encoding.
type Prompt struct {
	Question    exam.Question
	HasQuestion bool
	Format      string
	Audio       []byte
	SampleRate  int
	Bits        int
	Channels    int
}

// Attempt is one logical answer delivery, retried in place until success.
type Attempt struct {
	ID      string
	Target  exam.Target
	Name    string
	Email   string
	Payload []byte
	// SpoolPath is the durable copy of Payload, if one was written.
	SpoolPath string
}

// Receipt is the server's reply to a successful upload.
type Receipt struct {
	Transcription string
}

// Client talks to the session server over HTTP.
type Client struct {
	BaseURL string
	Routes  Routes
	HTTP    *http.Client
	Logger  *slog.Logger
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, routes Routes, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Routes:  routes,
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

type statusPayload struct {
	Status   *int   `json:"status"`
	Started  *int64 `json:"started"`
	Limit    *int64 `json:"limit"`
	Redirect string `json:"redirect"`
}

// Poll fetches one status signal for id.
func (c *Client) Poll(ctx context.Context, id exam.Identity) (status.Signal, error) {
	target := expand(c.Routes.Status, id.Room, id.ParticipantID, exam.Question{})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+target, nil)
	if err != nil {
		return status.Signal{}, err
	}

	var payload statusPayload
	if err := c.doJSON(req, &payload); err != nil {
		pollsTotal.WithLabelValues(errorClass(err)).Inc()
		return status.Signal{}, fmt.Errorf("poll status: %w", err)
	}
	if payload.Status == nil {
		pollsTotal.WithLabelValues("protocol_error").Inc()
		return status.Signal{}, fmt.Errorf("poll status: %w: missing status field", ErrProtocol)
	}

	sig := status.Signal{Code: status.Code(*payload.Status), Redirect: payload.Redirect}
	if payload.Started != nil {
		started := time.UnixMilli(*payload.Started)
		sig.Started = &started
	}
	if payload.Limit != nil {
		limit := time.Duration(*payload.Limit) * time.Millisecond
		sig.Limit = &limit
	}
	pollsTotal.WithLabelValues(sig.Code.String()).Inc()
	return sig, nil
}

type promptPayload struct {
	Audio      string `json:"audio"`
	Question   *int   `json:"question"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Bits       int    `json:"bits"`
	Channels   int    `json:"channels"`
}

// FetchPrompt fetches the active prompt's audio for id.
func (c *Client) FetchPrompt(ctx context.Context, id exam.Identity) (Prompt, error) {
	target := expand(c.Routes.Prompt, id.Room, id.ParticipantID, exam.Question{})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+target, nil)
	if err != nil {
		return Prompt{}, err
	}

	var payload promptPayload
	if err := c.doJSON(req, &payload); err != nil {
		return Prompt{}, fmt.Errorf("fetch prompt: %w", err)
	}
	if payload.Audio == "" {
		return Prompt{}, fmt.Errorf("fetch prompt: %w: missing audio", ErrProtocol)
	}
	audio, err := base64.StdEncoding.DecodeString(payload.Audio)
	if err != nil {
		return Prompt{}, fmt.Errorf("fetch prompt: %w: audio is not base64: %v", ErrProtocol, err)
	}

	prompt := Prompt{
		Format:     strings.ToLower(strings.TrimSpace(payload.Format)),
		Audio:      audio,
		SampleRate: payload.SampleRate,
		Bits:       payload.Bits,
		Channels:   payload.Channels,
	}
	if payload.Question != nil {
		prompt.Question = exam.Question{Index: *payload.Question}
		prompt.HasQuestion = true
	}
	return prompt, nil
}

// NotifyPlaying tells the server the prompt for q started playing.
func (c *Client) NotifyPlaying(ctx context.Context, id exam.Identity, q exam.Question) error {
	return c.notify(ctx, c.Routes.Playing, id, q)
}

// NotifyRecording tells the server capture for q has begun.
func (c *Client) NotifyRecording(ctx context.Context, id exam.Identity, q exam.Question) error {
	return c.notify(ctx, c.Routes.Recording, id, q)
}

func (c *Client) notify(ctx context.Context, route string, id exam.Identity, q exam.Question) error {
	body, err := json.Marshal(map[string]any{
		"question": q.Index,
		"name":     id.ParticipantName,
		"email":    id.Email,
	})
	if err != nil {
		return err
	}

	target := expand(route, id.Room, id.ParticipantID, q)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify %s: server returned %s", target, resp.Status)
	}
	return nil
}

type uploadPayload struct {
	Transcription string `json:"transcription"`
	Error         string `json:"error"`
}

// Upload sends one finalized container. Any returned error means the
// attempt failed and may be retried with the identical payload.
func (c *Client) Upload(ctx context.Context, a Attempt) (Receipt, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="answer-%d.wav"`, a.Target.Question.Index))
	header.Set("Content-Type", "audio/wav")
	part, err := form.CreatePart(header)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := part.Write(a.Payload); err != nil {
		return Receipt{}, err
	}
	if a.Name != "" {
		_ = form.WriteField("name", a.Name)
	}
	if a.Email != "" {
		_ = form.WriteField("email", a.Email)
	}
	if err := form.Close(); err != nil {
		return Receipt{}, err
	}

	target := expand(c.Routes.Upload, a.Target.Room, a.Target.ParticipantID, a.Target.Question)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+target, &body)
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if a.ID != "" {
		req.Header.Set("X-Attempt-ID", a.ID)
	}

	var payload uploadPayload
	if err := c.doJSON(req, &payload); err != nil {
		return Receipt{}, fmt.Errorf("upload answer: %w", err)
	}
	if strings.TrimSpace(payload.Error) != "" {
		return Receipt{}, fmt.Errorf("upload answer: %w: %s", ErrRejected, payload.Error)
	}
	return Receipt{Transcription: payload.Transcription}, nil
}

// doJSON executes req and decodes a JSON body. 4xx statuses that mean the
// participant is not addressable and undecodable bodies are protocol errors;
// the rest are transient.
func (c *Client) doJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(bodyBytes))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%w: server returned %s: %s", ErrProtocol, resp.Status, detail)
		default:
			return fmt.Errorf("server returned %s: %s", resp.Status, detail)
		}
	}

	// A body that cannot be read in full is a transport failure; only a
	// complete body that does not decode is a protocol error.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProtocol, err)
	}
	return nil
}

func errorClass(err error) string {
	if errors.Is(err, ErrProtocol) {
		return "protocol_error"
	}
	return "transport_error"
}
