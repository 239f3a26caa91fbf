package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// PullProgress is one NDJSON line of a /api/pull stream.
type PullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Percent returns download completion in [0,100], or -1 when the line
// carries no size information.
func (p PullProgress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}

	return float64(p.Completed) * 100 / float64(p.Total) //nolint:mnd // percentage
}

const maxPullLine = 1 << 20

// Pull downloads a model through the server and reports each progress line
// to progress, which may be nil. Pulls can take minutes, so no per-attempt
// timeout applies and the call is not retried.
func (c *Client) Pull(ctx context.Context, baseURL, name string, progress func(PullProgress)) error {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return err
	}

	a := c.adapter(base)
	if c.http == nil {
		a.Client = &http.Client{}
	}

	body, err := a.PostStream(ctx, "/api/pull", map[string]any{"model": name, "stream": true})
	if err != nil {
		return classify(err, base)
	}
	defer func() { _ = body.Close() }()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxPullLine) //nolint:mnd // initial line buffer

	var last PullProgress
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var p PullProgress
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("ollama: pull %s: decode progress: %w", name, err)
		}

		if p.Error != "" {
			return fmt.Errorf("ollama: pull %s: %s", name, p.Error)
		}

		if progress != nil {
			progress(p)
		}

		last = p
	}

	if err := sc.Err(); err != nil {
		return classify(err, base)
	}

	if last.Status != "success" {
		return fmt.Errorf("ollama: pull %s: stream ended with status %q", name, last.Status)
	}

	c.logger.Info("model pulled", "model", name)

	return nil
}
