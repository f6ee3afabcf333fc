package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"insta-relay/internal/config"
	"insta-relay/internal/dialog"
	"insta-relay/internal/models"
	"insta-relay/internal/relay"
)

type MockRelay struct {
	mock.Mock
}

func (m *MockRelay) Handle(ctx context.Context, msg models.InboundMessage) models.Result {
	args := m.Called(ctx, msg)
	return args.Get(0).(models.Result)
}

func newTestServer(relay *MockRelay, whitelist ...string) *Server {
	return NewServer(&config.APIConfig{ListenAddr: ":0", WhitelistIPs: whitelist}, relay)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(new(MockRelay))
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRelay_ForwardsMessage(t *testing.T) {
	relay := new(MockRelay)
	relay.On("Handle", mock.Anything, mock.MatchedBy(func(msg models.InboundMessage) bool {
		return msg.ChatID == 42 && msg.Text == "/profile nasa" && msg.RequestID != ""
	})).Return(models.Result{RequestID: "r1", Success: true, Text: "ok"})
	s := newTestServer(relay)

	body := `{"chat_id":42,"user_id":7,"user_name":"alice","text":" /profile nasa "}`
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/relay", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var res models.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "ok", res.Text)
	relay.AssertExpectations(t)
}

func TestRelay_RequestsAreAnonymous(t *testing.T) {
	relay := new(MockRelay)
	relay.On("Handle", mock.Anything, mock.MatchedBy(func(msg models.InboundMessage) bool {
		return msg.UserID == 0 && msg.UserName == "alice" && msg.Text == "cancel"
	})).Return(models.Result{Success: true, Text: "There is no active session."})
	s := newTestServer(relay)

	// user_id 7 is a Telegram user; the HTTP request must not reach their dialog
	body := `{"chat_id":42,"user_id":7,"user_name":"alice","text":"cancel"}`
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/relay", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	relay.AssertExpectations(t)
}

func TestRelay_LeavesTelegramDialogsAlone(t *testing.T) {
	cfg := &config.Config{}
	cfg.Instagram.FeedLimit = 3
	cfg.Relay.RequestTimeout = time.Second
	cfg.Relay.CancelKeywords = []string{"cancel"}
	dialogs := dialog.NewManager(time.Minute, nil)
	s := NewServer(&config.APIConfig{ListenAddr: ":0"}, relay.NewBridge(nil, dialogs, cfg))

	dialogs.StartDialog(7, 42, relay.CmdProfile)
	post := func(body string) models.Result {
		rec := httptest.NewRecorder()
		s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/relay", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)
		var res models.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		return res
	}

	post(`{"chat_id":42,"user_id":7,"text":"cancel"}`)
	post(`{"chat_id":42,"user_id":7,"text":"/help"}`)
	assert.True(t, dialogs.IsDialogActive(7))

	res := post(`{"chat_id":42,"user_id":8,"text":"/posts"}`)
	assert.Equal(t, relay.ErrKindBadArgument, res.Error)
	assert.False(t, dialogs.IsDialogActive(8))
}

func TestRelay_BadRequests(t *testing.T) {
	relay := new(MockRelay)
	s := newTestServer(relay)

	for _, body := range []string{`{not json`, `{"chat_id":1,"text":"   "}`, `{}`} {
		rec := httptest.NewRecorder()
		s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/relay", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	relay.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestRelay_MethodNotAllowed(t *testing.T) {
	s := newTestServer(new(MockRelay))
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/relay", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWhitelist(t *testing.T) {
	s := newTestServer(new(MockRelay), "10.0.0.0/8", "192.168.1.5")

	cases := []struct {
		remote    string
		forwarded string
		want      int
	}{
		{"10.1.2.3:5000", "", http.StatusOK},
		{"192.168.1.5:5000", "", http.StatusOK},
		{"203.0.113.9:5000", "", http.StatusForbidden},
		{"203.0.113.9:5000", "10.9.9.9, 203.0.113.9", http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.RemoteAddr = c.remote
		if c.forwarded != "" {
			req.Header.Set("X-Forwarded-For", c.forwarded)
		}
		rec := httptest.NewRecorder()
		s.Router.ServeHTTP(rec, req)
		assert.Equal(t, c.want, rec.Code, c.remote+" "+c.forwarded)
	}

	// health checks stay open
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.9:5000"
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIsIPAllowed(t *testing.T) {
	assert.True(t, isIPAllowed("127.0.0.1", []string{"127.0.0.1"}))
	assert.False(t, isIPAllowed("127.0.0.2", []string{"127.0.0.1", "not-a-cidr/99"}))
	assert.False(t, isIPAllowed("garbage", []string{"10.0.0.0/8"}))
}
