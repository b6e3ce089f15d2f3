package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"schedbot/bot/timetable"
	"schedbot/core/logger"
	tg "schedbot/core/telegram"
	"log/slog"
)

const (
	mimePNG  = "image/png"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	maxArtifactBytes = 32 << 20
)

// Client is the HTTP Renderer implementation.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOptions configure a Client.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a Renderer backed by the rendering service.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = tg.BuildHTTPClient()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
	}
}

type renderPayload struct {
	Title string          `json:"title"`
	Days  []timetable.Day `json:"days,omitempty"`
	Query string          `json:"query,omitempty"`
	Kind  string          `json:"kind,omitempty"`
}

// WeekImage implements Renderer.
func (c *Client) WeekImage(ctx context.Context, title string, days []timetable.Day) (*Artifact, error) {
	data, err := c.render(ctx, "/render/week.png", renderPayload{Title: title, Days: days})
	if err != nil {
		return nil, err
	}
	return newArtifact("schedule", "png", mimePNG, data), nil
}

// DayImages implements Renderer.
func (c *Client) DayImages(ctx context.Context, title string, days []timetable.Day) ([]*Artifact, error) {
	out := make([]*Artifact, 0, len(days))
	for _, day := range days {
		data, err := c.render(ctx, "/render/day.png", renderPayload{Title: title, Days: []timetable.Day{day}})
		if err != nil {
			return nil, fmt.Errorf("day %s: %w", day.Date, err)
		}
		out = append(out, newArtifact("day", "png", mimePNG, data))
	}
	return out, nil
}

// WeekFile implements Renderer.
func (c *Client) WeekFile(ctx context.Context, title string, days []timetable.Day) (*Artifact, error) {
	data, err := c.render(ctx, "/render/week.xlsx", renderPayload{Title: title, Days: days})
	if err != nil {
		return nil, err
	}
	return newArtifact("schedule", "xlsx", mimeXLSX, data), nil
}

// Semester implements Renderer.
func (c *Client) Semester(ctx context.Context, query string, kind timetable.Kind) (*Artifact, error) {
	data, err := c.render(ctx, "/render/semester.xlsx", renderPayload{Title: query, Query: query, Kind: string(kind)})
	if err != nil {
		return nil, err
	}
	return newArtifact("semester", "xlsx", mimeXLSX, data), nil
}

func (c *Client) render(ctx context.Context, path string, payload renderPayload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("render: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("render: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render: request %s: unexpected status %d", path, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return nil, fmt.Errorf("render: read artifact: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("render: request %s: empty artifact", path)
	}

	logger.Debug(ctx, "export", "render.done",
		slog.String("export_kind", path),
		slog.Int("bytes", len(data)),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)
	return data, nil
}

// newArtifact wraps rendered bytes with a unique id so progress logs
// and filenames stay correlated.
func newArtifact(stem, ext, mime string, data []byte) *Artifact {
	id := uuid.NewString()
	return &Artifact{
		ID:       id,
		Filename: fmt.Sprintf("%s_%s.%s", stem, id[:8], ext),
		MIME:     mime,
		Data:     data,
	}
}
