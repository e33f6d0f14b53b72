package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, 0).UTC() }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

func testUpload() Upload {
	return Upload{
		FileName:       "GrandTotalReport_2024.pdf",
		Data:           []byte("%PDF-1.4 fake"),
		ConversationID: "chat-9",
		MessageID:      "msg-1",
		Checksum:       "deadbeef",
	}
}

func TestSendMultipartFields(t *testing.T) {
	t.Parallel()

	var gotType, gotConversation, gotMessage, gotChecksum, gotFile, gotContentType string
	var gotData []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotType = r.FormValue("type")
		gotConversation = r.FormValue("conversationId")
		gotMessage = r.FormValue("messageId")
		gotChecksum = r.Header.Get("X-Content-Sha256")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFile = header.Filename
		gotContentType = header.Header.Get("Content-Type")
		buf := make([]byte, header.Size)
		_, err = file.Read(buf)
		require.NoError(t, err)
		gotData = buf

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{MaxRetries: 0}, &fakeClock{}, zap.NewNop())
	status, err := d.Send(context.Background(), Target{URL: srv.URL, Label: "grand_total_report"}, testUpload())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "grand_total_report", gotType)
	require.Equal(t, "chat-9", gotConversation)
	require.Equal(t, "msg-1", gotMessage)
	require.Equal(t, "deadbeef", gotChecksum)
	require.Equal(t, "GrandTotalReport_2024.pdf", gotFile)
	require.Equal(t, "application/pdf", gotContentType)
	require.Equal(t, []byte("%PDF-1.4 fake"), gotData)
}

func TestSendOmitsUnknownConversation(t *testing.T) {
	t.Parallel()

	var hadConversation bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hadConversation = r.MultipartForm.Value["conversationId"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up := testUpload()
	up.ConversationID = ""
	d := NewDispatcher(Config{}, &fakeClock{}, zap.NewNop())
	_, err := d.Send(context.Background(), Target{URL: srv.URL, Label: "invoice"}, up)
	require.NoError(t, err)
	require.False(t, hadConversation)
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		// Body must be complete on every attempt, not just the first.
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "msg-1", r.FormValue("messageId"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	clk := &fakeClock{}
	d := NewDispatcher(Config{MaxRetries: 3, Backoff: 2 * time.Second}, clk, zap.NewNop())
	status, err := d.Send(context.Background(), Target{URL: srv.URL, Label: "invoice"}, testUpload())
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clk.sleeps)
}

func TestSendExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{MaxRetries: 3, Backoff: time.Millisecond}, &fakeClock{}, zap.NewNop())
	_, err := d.Send(context.Background(), Target{URL: srv.URL, Label: "invoice"}, testUpload())
	require.ErrorIs(t, err, ErrRelayFailed)
	require.Equal(t, int32(4), calls.Load(), "1 initial attempt + 3 retries")
	require.Contains(t, err.Error(), "4 attempts")
}

func TestSendUnreachableTarget(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(Config{MaxRetries: 1, Backoff: time.Millisecond}, &fakeClock{}, zap.NewNop())
	_, err := d.Send(context.Background(), Target{URL: "http://127.0.0.1:1", Label: "invoice"}, testUpload())
	require.ErrorIs(t, err, ErrRelayFailed)
}
