package deliver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NtfyMaxBody is the largest message body ntfy accepts as plain text.
const NtfyMaxBody = 4000

// Ntfy publishes to an ntfy.sh (or self-hosted) topic.
type Ntfy struct {
	url    string // full URL: https://ntfy.sh/{topic}
	token  string // optional bearer token for reserved topics
	client *http.Client
	log    zerolog.Logger
}

// NewNtfy creates a publisher. Topic can be a bare topic name (expanded to
// https://ntfy.sh/{topic}) or a full URL.
func NewNtfy(topic, token string, timeout time.Duration, logger zerolog.Logger) *Ntfy {
	url := topic
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		url = "https://ntfy.sh/" + topic
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Ntfy{url: url, token: token, client: &http.Client{Timeout: timeout}, log: logger}
}

func (n *Ntfy) Name() string { return "ntfy" }

func (n *Ntfy) Deliver(ctx context.Context, m Message) error {
	if len(m.Image) > 0 {
		err := n.publish(ctx, http.MethodPut, bytes.NewReader(m.Image), map[string]string{
			"Title":    m.Title,
			"Filename": "article.png",
		})
		if err != nil {
			// Text still goes out without the illustration.
			n.log.Warn().Err(err).Str("topic", n.url).Msg("ntfy image failed")
		}
	}

	chunks := ChunkBytes(m.Text(), NtfyMaxBody)
	for i, chunk := range chunks {
		title := m.Title
		if len(chunks) > 1 {
			title = fmt.Sprintf("%s (%d/%d)", m.Title, i+1, len(chunks))
		}
		headers := map[string]string{"Title": title, "Tags": "bar_chart"}
		if m.Source != "" {
			headers["Click"] = m.Source
		}
		if err := n.publish(ctx, http.MethodPost, strings.NewReader(chunk), headers); err != nil {
			return fmt.Errorf("ntfy chunk %d: %w", i+1, err)
		}
	}
	return nil
}

func (n *Ntfy) Notify(ctx context.Context, text string) error {
	return n.publish(ctx, http.MethodPost, strings.NewReader(text), map[string]string{
		"Title":    "purefact",
		"Priority": "low",
	})
}

func (n *Ntfy) publish(ctx context.Context, method string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, method, n.url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
