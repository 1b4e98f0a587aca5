package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSender struct {
	name string
	err  error
	sent []string
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.sent = append(r.sent, title)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &recordSender{name: "a"}
	b := &recordSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "position_closed", "closed", "ETH long"))
	assert.Equal(t, []string{"closed"}, a.sent)
	assert.Equal(t, []string{"closed"}, b.sent)
}

func TestNotifyEventFilter(t *testing.T) {
	s := &recordSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"position_failed"}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "position_closed", "closed", "x"))
	assert.Empty(t, s.sent)

	require.NoError(t, n.Notify(context.Background(), "position_failed", "failed", "x"))
	assert.Equal(t, []string{"failed"}, s.sent)
}

func TestNotifySenderFailuresIndependent(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("boom")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "position_failed", "failed", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, []string{"failed"}, good.sent)
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Stop-loss executed", "ETH long closed"))
	assert.Equal(t, "application/json", gotContentType)
	assert.Contains(t, string(gotBody), "**Stop-loss executed**")
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
