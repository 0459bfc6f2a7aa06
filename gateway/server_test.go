package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pairchat/auth"
	"pairchat/contract"
	"pairchat/moderation"
	"pairchat/repositories"
	"pairchat/runtime"
	"pairchat/runtime/workers"
	"pairchat/services"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = indexWriter.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repositories.NewUserRepository(db, contract.UTCClock)
	conversations := repositories.NewConversationRegistry(db, users, contract.UTCClock)
	messages := repositories.NewMessageLog(db, indexWriter, conversations, log, contract.UTCClock)

	moderator, err := moderation.NewModerator([]string{"idiot"}, '*')
	require.NoError(t, err)
	supervisor := workers.NewSupervisor(log, 50*time.Millisecond)
	dispatcher := runtime.NewDispatcher(log, supervisor, runtime.NewRegistry(), users,
		conversations, messages, moderator, 1, 16, 200*time.Millisecond, time.Minute, contract.UTCClock)

	chat := services.NewChatService(dispatcher, conversations, messages)
	identity := services.NewIdentityService(users, conversations, messages, log)
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	server := NewServer(log, chat, identity, tokens, 16, 50)
	return server.Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload
}

func registerAndLogin(t *testing.T, router *gin.Engine, email string) (string, string) {
	t.Helper()
	recorder := doJSON(t, router, http.MethodPost, "/api/v1/users", "", gin.H{
		"email": email, "firstName": "Test", "lastName": "User",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	userID := decode(t, recorder)["id"].(string)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/tokens", "", gin.H{"userId": userID})
	require.Equal(t, http.StatusOK, recorder.Code)
	return userID, decode(t, recorder)["token"].(string)
}

func TestGateway_Register_Validates_Input(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/users", "", gin.H{
		"email": "not-an-email", "firstName": "Test", "lastName": "User",
	})
	req.Equal(http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/users", "", gin.H{
		"email": "ok@example.com", "firstName": "Test", "lastName": "User",
	})
	req.Equal(http.StatusCreated, recorder.Code)
}

func TestGateway_Requires_Bearer_Token(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodGet, "/api/v1/conversations", "", nil)
	req.Equal(http.StatusUnauthorized, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/conversations", "garbage-token", nil)
	req.Equal(http.StatusUnauthorized, recorder.Code)
}

func TestGateway_Submit_And_List_Messages(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t)
	_, aliceToken := registerAndLogin(t, router, "alice@example.com")
	bobID, bobToken := registerAndLogin(t, router, "bob@example.com")

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/messages", aliceToken, gin.H{
		"peerId": bobID, "kind": "TEXT", "body": "hello bob",
	})
	req.Equal(http.StatusCreated, recorder.Code)
	created := decode(t, recorder)
	req.Equal("hello bob", created["body"])
	req.Equal(float64(1), created["sequence"])
	req.Equal("PENDING", created["deliveryState"])
	conversationID := created["conversationId"].(string)

	recorder = doJSON(t, router,
		http.MethodGet, fmt.Sprintf("/api/v1/conversations/%s/messages", conversationID), bobToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	listed := decode(t, recorder)["messages"].([]any)
	req.Len(listed, 1)

	// A stranger cannot read the conversation.
	_, eveToken := registerAndLogin(t, router, "eve@example.com")
	recorder = doJSON(t, router,
		http.MethodGet, fmt.Sprintf("/api/v1/conversations/%s/messages", conversationID), eveToken, nil)
	req.Equal(http.StatusForbidden, recorder.Code)
}

func TestGateway_Submit_Rejects_Unknown_Kind(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t)
	_, aliceToken := registerAndLogin(t, router, "alice@example.com")
	bobID, _ := registerAndLogin(t, router, "bob@example.com")

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/messages", aliceToken, gin.H{
		"peerId": bobID, "kind": "VIDEO", "body": "nope",
	})
	req.Equal(http.StatusBadRequest, recorder.Code)
}

func TestGateway_Submit_Rejects_Geoloc_Without_Coordinates(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t)
	_, aliceToken := registerAndLogin(t, router, "alice@example.com")
	bobID, _ := registerAndLogin(t, router, "bob@example.com")

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/messages", aliceToken, gin.H{
		"peerId": bobID, "kind": "GEOLOC",
	})
	req.Equal(http.StatusBadRequest, recorder.Code)
}

func TestGateway_MarkRead(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t)
	_, aliceToken := registerAndLogin(t, router, "alice@example.com")
	bobID, bobToken := registerAndLogin(t, router, "bob@example.com")

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/messages", aliceToken, gin.H{
		"peerId": bobID, "kind": "TEXT", "body": "read me",
	})
	req.Equal(http.StatusCreated, recorder.Code)
	messageID := decode(t, recorder)["id"].(string)

	// The author cannot acknowledge their own message.
	recorder = doJSON(t, router, http.MethodPost, "/api/v1/messages/"+messageID+"/read", aliceToken, nil)
	req.Equal(http.StatusForbidden, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/messages/"+messageID+"/read", bobToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	req.Equal(true, decode(t, recorder)["readFlag"])
}

func TestGateway_Remove_User_Then_Tombstoned_History(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t)
	_, aliceToken := registerAndLogin(t, router, "alice@example.com")
	bobID, bobToken := registerAndLogin(t, router, "bob@example.com")

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/messages", aliceToken, gin.H{
		"peerId": bobID, "kind": "TEXT", "body": "goodbye",
	})
	req.Equal(http.StatusCreated, recorder.Code)
	conversationID := decode(t, recorder)["conversationId"].(string)

	recorder = doJSON(t, router, http.MethodDelete, "/api/v1/users/me", aliceToken, nil)
	req.Equal(http.StatusNoContent, recorder.Code)

	recorder = doJSON(t, router,
		http.MethodGet, fmt.Sprintf("/api/v1/conversations/%s/messages", conversationID), bobToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	listed := decode(t, recorder)["messages"].([]any)
	req.Len(listed, 1)
	author := listed[0].(map[string]any)["author"].(map[string]any)
	req.Equal(true, author["removed"])
}
