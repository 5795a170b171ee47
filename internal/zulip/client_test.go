package zulip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintsync/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Form   map[string]string
	User   string
	Pass   string
}

type fakeRealm struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(w http.ResponseWriter, r *http.Request, n int)
}

func (f *fakeRealm) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Form: map[string]string{}}
	for k := range r.Form {
		rec.Form[k] = r.Form.Get(k)
	}
	rec.User, rec.Pass, _ = r.BasicAuth()
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	n := len(f.requests)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	f.handle(w, r, n)
}

func (f *fakeRealm) all() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestClient(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, n int)) (*Client, *fakeRealm) {
	t.Helper()
	realm := &fakeRealm{handle: handle}
	srv := httptest.NewServer(realm)
	t.Cleanup(srv.Close)
	c := New(config.ZulipConfig{
		APIURL:      srv.URL,
		Email:       "bot@example.com",
		APIKey:      "secret",
		AdminEmails: []string{"admin@example.com"},
		Timeout:     2 * time.Second,
		Retries:     1,
	}, nil)
	return c, realm
}

func success(w http.ResponseWriter, extra string) {
	fmt.Fprintf(w, `{"result":"success","msg":""%s}`, extra)
}

func TestSendMessage(t *testing.T) {
	c, realm := newTestClient(t, func(w http.ResponseWriter, r *http.Request, n int) {
		success(w, `,"id":42`)
	})

	id, err := c.SendMessage(context.Background(), "PRJ/Core", "topic", "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	reqs := realm.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/api/v1/messages", reqs[0].Path)
	assert.Equal(t, "stream", reqs[0].Form["type"])
	assert.Equal(t, "PRJ/Core", reqs[0].Form["to"])
	assert.Equal(t, "topic", reqs[0].Form["topic"])
	assert.Equal(t, "hello", reqs[0].Form["content"])
	assert.Equal(t, "bot@example.com", reqs[0].User)
	assert.Equal(t, "secret", reqs[0].Pass)
}

func TestSendMessageRecreatesMissingStream(t *testing.T) {
	c, realm := newTestClient(t, func(w http.ResponseWriter, r *http.Request, n int) {
		switch n {
		case 1:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"result":"error","msg":"Stream does not exist","code":"STREAM_DOES_NOT_EXIST"}`)
		case 2:
			success(w, `,"subscribed":{"bot@example.com":["PRJ/Core"]}`)
		default:
			success(w, `,"id":7`)
		}
	})

	id, err := c.SendMessage(context.Background(), "PRJ/Core", "t", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	reqs := realm.all()
	require.Len(t, reqs, 3)
	assert.Equal(t, "/api/v1/users/me/subscriptions", reqs[1].Path)
	var principals []string
	require.NoError(t, json.Unmarshal([]byte(reqs[1].Form["principals"]), &principals))
	assert.Equal(t, []string{"admin@example.com", "bot@example.com"}, principals)
	assert.Equal(t, "true", reqs[1].Form["invite_only"])
	assert.Equal(t, "true", reqs[1].Form["history_public_to_subscribers"])
	assert.Equal(t, "/api/v1/messages", reqs[2].Path)
}

func TestUpdateMessageForm(t *testing.T) {
	c, realm := newTestClient(t, func(w http.ResponseWriter, r *http.Request, n int) {
		success(w, "")
	})

	err := c.UpdateMessage(context.Background(), 99, "new topic", "body", PropagateChangeAll)
	require.NoError(t, err)

	reqs := realm.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPatch, reqs[0].Method)
	assert.Equal(t, "/api/v1/messages/99", reqs[0].Path)
	assert.Equal(t, map[string]string{
		"topic":                           "new topic",
		"propagate_mode":                  "change_all",
		"send_notification_to_new_thread": "false",
		"send_notification_to_old_thread": "false",
		"content":                         "body",
	}, reqs[0].Form)
}

func TestDeleteAndTopicCalls(t *testing.T) {
	c, realm := newTestClient(t, func(w http.ResponseWriter, r *http.Request, n int) {
		if r.URL.Path == "/api/v1/get_stream_id" {
			success(w, `,"stream_id":15`)
			return
		}
		success(w, "")
	})
	ctx := context.Background()

	require.NoError(t, c.DeleteMessage(ctx, 5))
	sid, err := c.StreamID(ctx, "PRJ/Core")
	require.NoError(t, err)
	assert.Equal(t, int64(15), sid)
	require.NoError(t, c.DeleteTopic(ctx, sid, "old topic"))

	reqs := realm.all()
	require.Len(t, reqs, 3)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/api/v1/messages/5", reqs[0].Path)
	assert.Equal(t, http.MethodGet, reqs[1].Method)
	assert.Equal(t, "PRJ/Core", reqs[1].Form["stream"])
	assert.Equal(t, "/api/v1/streams/15/delete_topic", reqs[2].Path)
	assert.Equal(t, "old topic", reqs[2].Form["topic_name"])
}

func TestEnvelopeErrorIsTransportError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, n int) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"result":"error","msg":"Invalid message(s)","code":"BAD_REQUEST"}`)
	})

	err := c.DeleteMessage(context.Background(), 1)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "delete_message", te.Op)
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Equal(t, "BAD_REQUEST", te.Code)
	assert.Equal(t, "Invalid message(s)", te.Message)
}

func TestNonSuccessResultWithOKStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, n int) {
		fmt.Fprint(w, `{"result":"error","msg":"nope"}`)
	})
	_, err := c.SendMessage(context.Background(), "s", "t", "c")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusOK, te.Status)
}

func TestConnectionFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := New(config.ZulipConfig{APIURL: addr, Email: "b", APIKey: "k", Timeout: time.Second, Retries: 1}, nil)
	err := c.DeleteMessage(context.Background(), 1)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Error(t, te.Err)
}

func TestClientWithoutTimeoutIsBounded(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := New(config.ZulipConfig{APIURL: srv.URL, Email: "b", APIKey: "k", Timeout: 200 * time.Millisecond}, &http.Client{})
	assert.Equal(t, 200*time.Millisecond, c.HTTPClient.Timeout)

	start := time.Now()
	_, err := c.SendMessage(context.Background(), "PRJ/Core", "t", "c")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Less(t, time.Since(start), 2*time.Second)
}
