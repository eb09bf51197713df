package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniapp/backend/internal/docstore"
	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/middleware"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/services"
	"github.com/uniapp/backend/internal/session"
)

type stubHost struct {
	url string
	err error
}

func (h *stubHost) Upload(ctx context.Context, base64Image string) (*services.HostedImage, error) {
	if h.err != nil {
		return nil, h.err
	}
	return &services.HostedImage{URL: h.url}, nil
}

type testApp struct {
	srv   *httptest.Server
	store *docstore.MemoryStore
	host  *stubHost
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := logger.Nop()

	store, err := docstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	tokens := session.NewTokenManager("handler-secret", time.Hour)
	revoker := session.NewMemoryRevoker()
	broker := session.NewBroker(nil, log)
	profiles := services.NewProfileService(store)
	accounts := services.NewAccountService(services.NewLocalProvider(), profiles, tokens, revoker, broker, log)
	gate := middleware.NewSessionGate(tokens, revoker, profiles, log)
	host := &stubHost{url: "https://img.example/1.png"}
	pipeline := services.NewUploadPipeline(host, profiles, store, nil, 1<<20, log)

	router := NewRouter(RouterConfig{
		Auth:           NewAuthHandler(accounts, gate, false, log),
		Profile:        NewProfileHandler(profiles, log),
		Image:          NewImageHandler(pipeline, 1, log),
		Directory:      NewDirectoryHandler(services.NewDirectoryService(store), log),
		Live:           NewLiveHandler(services.NewScoreService(store, log), broker, gate, []string{"*"}, log),
		Gate:           gate,
		AllowedOrigins: []string{"*"},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testApp{srv: srv, store: store, host: host}
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, models.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.send(t, req)
}

func (a *testApp) send(t *testing.T, req *http.Request) (*http.Response, models.APIResponse) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out models.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (a *testApp) signUp(t *testing.T, email, first, last string) string {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Email: email, Password: "secret1", FirstName: first, LastName: last,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body.Error)
	assert.Equal(t, models.PageLogin, body.Redirect)

	resp, body = a.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: email, Password: "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body.Error)
	assert.Equal(t, models.PageServices, body.Redirect)

	data := body.Data.(map[string]interface{})
	return data["token"].(string)
}

func (a *testApp) multipart(t *testing.T, path, token string, fields map[string]string, file []byte, contentType string) (*http.Response, models.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="pic"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, a.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return a.send(t, req)
}

func TestAuthFlow(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{Email: "bad", Password: "1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Validation failed", body.Error)

	token := app.signUp(t, "ana@x.io", "Ana", "Lopez")

	resp, body = app.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Email: "ana@x.io", Password: "secret1", FirstName: "Ana",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Email Address Already Exists !!!", body.Error)

	resp, body = app.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "ana@x.io", Password: "wrong1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Incorrect Email or Password", body.Error)

	resp, body = app.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "nobody@x.io", Password: "secret1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Account does not Exist", body.Error)

	_, body = app.do(t, http.MethodGet, "/api/auth/state", token, nil)
	state := body.Data.(map[string]interface{})
	assert.Equal(t, true, state["signedIn"])

	resp, body = app.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.PageIndex, body.Redirect)

	resp, body = app.do(t, http.MethodGet, "/api/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, models.PageIndex, body.Redirect)
}

func TestProfileEndpoints(t *testing.T) {
	app := newTestApp(t)
	token := app.signUp(t, "ana@x.io", "Ana", "")

	resp, body := app.do(t, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := body.Data.(map[string]interface{})
	assert.Equal(t, "Ana", view["displayName"])
	assert.Equal(t, models.DefaultAboutMe, view["aboutMe"])

	resp, body = app.do(t, http.MethodPatch, "/api/profile", token, map[string]string{"aboutMe": "  chess  "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "About Me updated successfully!", body.Message)

	_, body = app.do(t, http.MethodGet, "/api/profile", token, nil)
	assert.Equal(t, "chess", body.Data.(map[string]interface{})["aboutMe"])
}

func TestUploadEndpoints(t *testing.T) {
	app := newTestApp(t)
	token := app.signUp(t, "ana@x.io", "Ana", "Lopez")
	png := []byte("\x89PNG\r\n\x1a\nrest")

	resp, body := app.multipart(t, "/api/profile/picture", token, nil, png, "image/png")
	require.Equal(t, http.StatusCreated, resp.StatusCode, body.Error)
	assert.Equal(t, "Profile picture updated successfully!", body.Message)

	_, body = app.do(t, http.MethodGet, "/api/profile", token, nil)
	assert.Equal(t, "https://img.example/1.png", body.Data.(map[string]interface{})["profilePicture"])

	resp, body = app.multipart(t, "/api/uploads", token, map[string]string{"caption": "@ana"}, png, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, body.Error)
	rec := body.Data.(map[string]interface{})
	assert.Equal(t, "@ana", rec["socialUsername"])
	assert.Equal(t, "Ana", rec["username"])

	resp, body = app.multipart(t, "/api/uploads", token, nil, nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Please select an image file", body.Error)

	resp, body = app.multipart(t, "/api/uploads", token, nil, []byte("%PDF-1.4"), "application/pdf")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body.Error, "Invalid image type")

	app.host.err = &services.UploadError{Message: "Invalid API key"}
	resp, body = app.multipart(t, "/api/profile/picture", token, nil, png, "image/png")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Failed to upload image: Invalid API key", body.Error)

	docs, err := app.store.QueryAll(context.Background(), services.UploadsCollection)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		var fields map[string]interface{}
		require.NoError(t, d.DataTo(&fields))
		assert.Equal(t, "Ana", fields["username"])
	}
}

func TestUploadEndpoints_TooLarge(t *testing.T) {
	app := newTestApp(t)
	token := app.signUp(t, "ana@x.io", "Ana", "Lopez")

	sized := func(n int) []byte {
		b := bytes.Repeat([]byte{0}, n)
		copy(b, "\x89PNG\r\n\x1a\n")
		return b
	}

	tests := []struct {
		name string
		size int
	}{
		{"over the body limit", 3 << 20},
		{"over the image limit", 3 << 19},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := app.multipart(t, "/api/profile/picture", token, nil, sized(tt.size), "image/png")
			assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
			assert.Equal(t, "Image file is too large", body.Error)
		})
	}

	docs, err := app.store.QueryAll(context.Background(), services.UploadsCollection)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDirectoryEndpoints(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "bob@x.io", "Bob", "")
	app.signUp(t, "dana@x.io", "Dana", "Scully")
	token := app.signUp(t, "ana@x.io", "Ana", "")

	resp, body := app.do(t, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pageToken, err := strconv.ParseUint(resp.Header.Get(SearchTokenHeader), 10, 64)
	require.NoError(t, err)
	users := body.Data.([]interface{})
	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[0].(map[string]interface{})["displayName"])

	resp, body = app.do(t, http.MethodGet, "/api/users?q=ANA", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	searchToken, err := strconv.ParseUint(resp.Header.Get(SearchTokenHeader), 10, 64)
	require.NoError(t, err)
	assert.Greater(t, searchToken, pageToken)
	users = body.Data.([]interface{})
	require.Len(t, users, 1)
	card := users[0].(map[string]interface{})
	assert.Equal(t, "Dana Scully", card["displayName"])

	resp, body = app.do(t, http.MethodGet, "/api/users/"+card["id"].(string), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dana@x.io", body.Data.(map[string]interface{})["email"])

	resp, _ = app.do(t, http.MethodGet, "/api/users/ghost", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func dial(t *testing.T, app *testApp, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(app.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	return conn
}

func TestScoresSocket(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, app.store.Set(ctx, services.ScoresCollection, services.MatchDocumentID, map[string]interface{}{"live": false}))

	conn := dial(t, app, "/ws/scores")

	var view map[string]interface{}
	require.NoError(t, conn.ReadJSON(&view))
	assert.Equal(t, models.StatusMatchNotLive, view["status"])
	assert.NotContains(t, view, "team1")

	require.NoError(t, app.store.Set(ctx, services.ScoresCollection, services.MatchDocumentID, map[string]interface{}{
		"live": true, "team1": "Lions", "team1Players": []interface{}{
			map[string]interface{}{"name": "A", "runs": 5},
			map[string]interface{}{"name": "B", "runs": 50},
		},
	}))
	require.NoError(t, conn.ReadJSON(&view))
	assert.Equal(t, models.StatusMatchLive, view["status"])
	players := view["team1Players"].([]interface{})
	assert.Equal(t, "B", players[0].(map[string]interface{})["name"])
}

func TestSessionSocket(t *testing.T) {
	app := newTestApp(t)

	anon := dial(t, app, "/ws/session")
	var frame map[string]interface{}
	require.NoError(t, anon.ReadJSON(&frame))
	assert.Equal(t, false, frame["signedIn"])
	assert.Equal(t, models.PageIndex, frame["redirect"])

	token := app.signUp(t, "ana@x.io", "Ana", "")
	conn := dial(t, app, "/ws/session?token="+token)

	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, true, frame["signedIn"])
	profile := frame["profile"].(map[string]interface{})
	assert.Equal(t, "Ana", profile["displayName"])

	resp, _ := app.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frame = map[string]interface{}{}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, false, frame["signedIn"])
	assert.Equal(t, models.PageIndex, frame["redirect"])
}
