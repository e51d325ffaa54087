package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/inantubek/rmnist/internal/runner"
	"github.com/inantubek/rmnist/pkg/logger"
	"github.com/inantubek/rmnist/pkg/models"
	"github.com/inantubek/rmnist/pkg/utils"
)

const callbackSecretHeader = "X-Tuner-Callback-Secret"

var (
	ErrInvalidURL       = errors.New("invalid callback URL")
	ErrMetadataEndpoint = errors.New("callback URL targets a cloud metadata endpoint")
	ErrInternalHost     = errors.New("callback URL targets an internal address")
)

// NotificationPayload is the JSON body posted to the callback URL
type NotificationPayload struct {
	RunID           string               `json:"run_id"`
	Status          models.RunStatus     `json:"status"`
	Reason          string               `json:"reason,omitempty"`
	Error           string               `json:"error,omitempty"`
	StartedAtUnixMs int64                `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64                `json:"ended_at_unix_ms,omitempty"`
	Iterations      int                  `json:"iterations"`
	Evaluations     int                  `json:"evaluations"`
	Best            models.Configuration `json:"best"`
	BestScore       models.Score         `json:"best_score"`
	Timestamp       int64                `json:"timestamp"` // when the notification was sent
}

// NewNotificationPayload builds the payload for a finished run
func NewNotificationPayload(st runner.Status) NotificationPayload {
	p := NotificationPayload{
		RunID:       st.RunID,
		Status:      st.Status,
		Reason:      st.Reason,
		Error:       st.Error,
		Iterations:  st.Search.Iteration,
		Evaluations: st.Search.Evaluations,
		Best:        st.Search.Best,
		BestScore:   st.Search.BestScore,
		Timestamp:   time.Now().UTC().UnixMilli(),
	}
	if !st.StartedAt.IsZero() {
		p.StartedAtUnixMs = st.StartedAt.UTC().UnixMilli()
	}
	if !st.FinishedAt.IsZero() {
		p.EndedAtUnixMs = st.FinishedAt.UTC().UnixMilli()
	}
	return p
}

// Notifier posts final search results to a callback URL
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier with 3 retries and exponential backoff from 1s
func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.ExponentialBackoff(time.Second, 30*time.Second, 2),
	}
}

// WithRetries overrides the retry count and base delay
func (n *Notifier) WithRetries(maxRetries int, baseDelay time.Duration) *Notifier {
	n.maxRetries = maxRetries
	n.backoff = utils.ExponentialBackoff(baseDelay, 30*time.Second, 2)
	return n
}

// Notify validates callbackURL and sends the payload in the background.
// A "{run_id}" placeholder in the URL is replaced with the run ID.
func (n *Notifier) Notify(callbackURL, callbackSecret string, st runner.Status) error {
	if callbackURL == "" {
		return nil
	}
	if err := validateCallbackURL(callbackURL); err != nil {
		logger.Warn("refusing callback URL", "callback_url", callbackURL, "error", err)
		return err
	}

	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", url.PathEscape(st.RunID))
	payload := NewNotificationPayload(st)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.send(finalURL, callbackSecret, payload)
	}()
	return nil
}

// Wait blocks until every pending notification has finished
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(callbackURL, callbackSecret string, payload NotificationPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload", "run_id", payload.RunID, "error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("retrying notification", "callback_url", callbackURL, "run_id", payload.RunID, "attempt", attempt)
			_ = utils.Sleep(context.Background(), n.backoff, attempt-1)
		}

		lastErr = n.post(callbackURL, callbackSecret, body)
		if lastErr == nil {
			logger.Info("notification sent successfully", "run_id", payload.RunID, "status", payload.Status)
			return
		}
		logger.Warn("notification attempt failed",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"attempt", attempt+1,
			"error", lastErr)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"run_id", payload.RunID,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}

func (n *Notifier) post(callbackURL, callbackSecret string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "rmnist-tuner/1.0")
	if callbackSecret != "" {
		req.Header.Set(callbackSecretHeader, callbackSecret)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, snippet)
}

var metadataHosts = map[string]bool{
	"169.254.169.254":          true,
	"fd00:ec2::254":            true,
	"metadata.google.internal": true,
	"metadata":                 true,
}

// validateCallbackURL rejects URLs that would let a callback reach cloud
// metadata services or internal addresses. The hostname "localhost" stays
// allowed for local development.
func validateCallbackURL(raw string) error {
	u, err := url.Parse(strings.ReplaceAll(raw, "{run_id}", "run"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: hostname is required", ErrInvalidURL)
	}

	lower := strings.ToLower(host)
	if metadataHosts[lower] {
		return fmt.Errorf("%w: %s", ErrMetadataEndpoint, host)
	}
	if lower == "localhost" {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() || isPrivateIP(ip) {
			return fmt.Errorf("%w: %s", ErrInternalHost, host)
		}
	}
	return nil
}

// isPrivateIP reports loopback, link-local and private-range addresses
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
