package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/app/store/memstore"
	"parley/internal/configs"
	"parley/internal/storage/memory"
)

type testServer struct {
	*httptest.Server
	deps *AppDeps
}

func newTestServer(t *testing.T, env map[string]string) *testServer {
	t.Helper()

	values := map[string]string{
		"STORAGE_DRIVER":        "memory",
		"POW_DIFFICULTY":        "0",
		"RATE_LIMIT_PER_MINUTE": "0",
	}
	for k, v := range env {
		values[k] = v
	}

	cfg, err := configs.Load(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})
	require.NoError(t, err)

	keys := memory.New()
	deps := NewAppDeps(cfg, memstore.New(), keys)

	srv := httptest.NewServer(Router(deps))

	ctx, cancel := context.WithCancel(context.Background())
	deps.Start(ctx)

	t.Cleanup(func() {
		cancel()
		deps.Wait()
		srv.Close()
		_ = keys.Close()
	})

	return &testServer{Server: srv, deps: deps}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type call struct {
	method  string
	path    string
	token   string
	body    any
	headers map[string]string
}

func (s *testServer) do(t *testing.T, c call) (int, envelope) {
	t.Helper()

	var body io.Reader
	if c.body != nil {
		data, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	r, err := http.NewRequest(c.method, s.URL+c.path, body)
	require.NoError(t, err)
	if c.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		r.Header.Set(k, v)
	}

	res, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	return res.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v), "data: %s", env.Data)
	return v
}

type account struct {
	id       string
	username string
	token    string
}

func (s *testServer) register(t *testing.T, username string) account {
	t.Helper()

	status, env := s.do(t, call{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret-" + username,
	}})
	require.Equal(t, http.StatusCreated, status, "register %s: %+v", username, env)

	out := decode[struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}](t, env)

	return account{id: out.User.ID, username: username, token: out.Token}
}

type channelDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	IsPrivate bool     `json:"isPrivate"`
	Members   []string `json:"members"`
	CreatedBy string   `json:"createdBy"`
}

func (s *testServer) createChannel(t *testing.T, owner account, name string, private bool) channelDTO {
	t.Helper()

	status, env := s.do(t, call{method: http.MethodPost, path: "/api/channels", token: owner.token,
		body: map[string]any{"name": name, "isPrivate": private}})
	require.Equal(t, http.StatusCreated, status, "create %s: %+v", name, env)

	return decode[struct {
		Channel channelDTO `json:"channel"`
	}](t, env).Channel
}

type senderDTO struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

type messageDTO struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	Content   string    `json:"content"`
	Sender    senderDTO `json:"sender"`
}

func messagesPath(channelID string) string {
	return fmt.Sprintf("/api/channels/%s/messages", channelID)
}
