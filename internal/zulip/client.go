// Package zulip is a small client for the parts of the Zulip REST API that
// the chat sync plugin needs: streams, topics and stream messages.
package zulip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sprintsync/internal/config"
	"sprintsync/internal/logging"
	"sprintsync/internal/telemetry"
)

const (
	CodeStreamDoesNotExist = "STREAM_DOES_NOT_EXIST"

	PropagateChangeOne = "change_one"
	PropagateChangeAll = "change_all"

	rebuildDescription = "Stream rebuild due to inexistance"
)

// Messenger is the chat surface used by the sync plugin.
type Messenger interface {
	CreateStream(ctx context.Context, name, description string, principals []string) (StreamResult, error)
	SendMessage(ctx context.Context, stream, topic, content string) (int64, error)
	UpdateMessage(ctx context.Context, id int64, topic, content, propagateMode string) error
	DeleteMessage(ctx context.Context, id int64) error
	StreamID(ctx context.Context, name string) (int64, error)
	DeleteTopic(ctx context.Context, streamID int64, topic string) error
}

// StreamResult is the subscription outcome reported by the server, keyed by
// user email.
type StreamResult struct {
	Subscribed        map[string][]string `json:"subscribed"`
	AlreadySubscribed map[string][]string `json:"already_subscribed"`
}

// TransportError is returned for any failed call: a network error, a non-2xx
// status, or an envelope whose result is not "success".
type TransportError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("zulip %s: %v", e.Op, e.Err)
	case e.Code != "":
		return fmt.Sprintf("zulip %s: status=%d code=%s: %s", e.Op, e.Status, e.Code, e.Message)
	default:
		return fmt.Sprintf("zulip %s: status=%d: %s", e.Op, e.Status, e.Message)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// envelope is the common response shape.
type envelope struct {
	Result   string `json:"result"`
	Msg      string `json:"msg"`
	Code     string `json:"code"`
	ID       int64  `json:"id"`
	StreamID int64  `json:"stream_id"`
	StreamResult
}

// Client talks to one Zulip realm as one bot.
type Client struct {
	BaseURL     string
	Email       string
	APIKey      string
	AdminEmails []string

	SendPath   string
	StreamPath string
	UpdatePath string
	DeletePath string

	HTTPClient *http.Client
	// Retries bounds how often a call that failed before any response is
	// retried. Only idempotent calls are retried.
	Retries int

	log    zerolog.Logger
	tracer trace.Tracer
}

// New builds a client from config. hc may be nil; a client without a
// timeout gets cfg.Timeout, or ten seconds when that is unset.
func New(cfg config.ZulipConfig, hc *http.Client) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	switch {
	case hc == nil:
		hc = &http.Client{Timeout: timeout}
	case hc.Timeout <= 0:
		bounded := *hc
		bounded.Timeout = timeout
		hc = &bounded
	}
	return &Client{
		BaseURL:     strings.TrimRight(cfg.APIURL, "/"),
		Email:       cfg.Email,
		APIKey:      cfg.APIKey,
		AdminEmails: append([]string(nil), cfg.AdminEmails...),
		SendPath:    orDefault(cfg.SendMessagePath, "/api/v1/messages"),
		StreamPath:  orDefault(cfg.CreateStreamPath, "/api/v1/users/me/subscriptions"),
		UpdatePath:  orDefault(cfg.UpdateMessagePath, "/api/v1/messages"),
		DeletePath:  orDefault(cfg.DeleteMessagePath, "/api/v1/messages"),
		HTTPClient:  hc,
		Retries:     cfg.Retries,
		log:         logging.Component("zulip"),
		tracer:      telemetry.Tracer("sprintsync/zulip"),
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// CreateStream creates (or subscribes to) an invite-only stream.
func (c *Client) CreateStream(ctx context.Context, name, description string, principals []string) (StreamResult, error) {
	subs, err := json.Marshal([]map[string]string{{"description": description, "name": name}})
	if err != nil {
		return StreamResult{}, err
	}
	princ, err := json.Marshal(dedupe(principals))
	if err != nil {
		return StreamResult{}, err
	}
	form := url.Values{}
	form.Set("subscriptions", string(subs))
	form.Set("principals", string(princ))
	form.Set("invite_only", "true")
	form.Set("history_public_to_subscribers", "true")

	env, err := c.call(ctx, "create_stream", http.MethodPost, c.StreamPath, form, true)
	if err != nil {
		return StreamResult{}, err
	}
	return env.StreamResult, nil
}

// SendMessage posts content to stream/topic and returns the message id. If
// the stream is missing it is created with the admins and the bot as
// members and the send is tried once more.
func (c *Client) SendMessage(ctx context.Context, stream, topic, content string) (int64, error) {
	form := url.Values{}
	form.Set("type", "stream")
	form.Set("to", stream)
	form.Set("topic", topic)
	form.Set("content", content)

	env, err := c.call(ctx, "send_message", http.MethodPost, c.SendPath, form, false)
	var te *TransportError
	if errors.As(err, &te) && te.Status == http.StatusBadRequest && te.Code == CodeStreamDoesNotExist {
		c.log.Info().Str("stream", stream).Msg("stream missing, recreating")
		principals := append(append([]string(nil), c.AdminEmails...), c.Email)
		if _, cerr := c.CreateStream(ctx, stream, rebuildDescription, principals); cerr != nil {
			return 0, cerr
		}
		env, err = c.call(ctx, "send_message", http.MethodPost, c.SendPath, form, false)
	}
	if err != nil {
		return 0, err
	}
	return env.ID, nil
}

// UpdateMessage moves and rewrites a message without notifying either
// thread.
func (c *Client) UpdateMessage(ctx context.Context, id int64, topic, content, propagateMode string) error {
	form := url.Values{}
	form.Set("topic", topic)
	form.Set("propagate_mode", propagateMode)
	form.Set("send_notification_to_new_thread", "false")
	form.Set("send_notification_to_old_thread", "false")
	form.Set("content", content)
	_, err := c.call(ctx, "update_message", http.MethodPatch, messagePath(c.UpdatePath, id), form, true)
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	_, err := c.call(ctx, "delete_message", http.MethodDelete, messagePath(c.DeletePath, id), nil, true)
	return err
}

// StreamID resolves a stream name to its numeric id.
func (c *Client) StreamID(ctx context.Context, name string) (int64, error) {
	q := url.Values{}
	q.Set("stream", name)
	env, err := c.call(ctx, "get_stream_id", http.MethodGet, "/api/v1/get_stream_id?"+q.Encode(), nil, true)
	if err != nil {
		return 0, err
	}
	return env.StreamID, nil
}

// DeleteTopic removes every message in the topic.
func (c *Client) DeleteTopic(ctx context.Context, streamID int64, topic string) error {
	form := url.Values{}
	form.Set("topic_name", topic)
	path := fmt.Sprintf("/api/v1/streams/%d/delete_topic", streamID)
	_, err := c.call(ctx, "delete_topic", http.MethodPost, path, form, true)
	return err
}

func messagePath(base string, id int64) string {
	return strings.TrimRight(base, "/") + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) call(ctx context.Context, op, method, path string, form url.Values, idempotent bool) (envelope, error) {
	ctx, span := c.tracer.Start(ctx, "zulip."+op, trace.WithAttributes(
		attribute.String("zulip.op", op),
		attribute.String("http.request.method", method),
	))
	defer span.End()

	var env envelope
	attempt := func() error {
		var err error
		env, err = c.do(ctx, op, method, path, form)
		if err == nil {
			return nil
		}
		var te *TransportError
		if !idempotent || !errors.As(err, &te) || te.Err == nil || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second
	retries := c.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)
	err := backoff.RetryNotify(attempt, b, func(err error, wait time.Duration) {
		c.log.Debug().Err(err).Str("op", op).Dur("wait", wait).Msg("retrying")
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ev := c.log.Error().Err(err).Str("op", op)
		var te *TransportError
		if errors.As(err, &te) {
			ev = ev.Int("status", te.Status).Str("code", te.Code)
		}
		ev.Msg("zulip call failed")
		return env, err
	}
	return env, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values) (envelope, error) {
	var env envelope
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return env, &TransportError{Op: op, Err: err}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.SetBasicAuth(c.Email, c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return env, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return env, &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if jerr := json.Unmarshal(raw, &env); jerr != nil {
		return env, &TransportError{Op: op, Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode != http.StatusOK || env.Result != "success" {
		return env, &TransportError{Op: op, Status: resp.StatusCode, Code: env.Code, Message: env.Msg}
	}
	return env, nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
