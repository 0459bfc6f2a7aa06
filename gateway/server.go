// Package gateway exposes the engine over HTTP and websocket sessions.
// Authentication is delegated to the external identity service: the
// gateway only validates the session token and trusts the identifier
// it carries.
package gateway

import (
	"log/slog"
	"net/http"
	"strconv"

	"pairchat/auth"
	"pairchat/domain"
	"pairchat/errors"
	"pairchat/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const userIDKey = "user_id"

type Server struct {
	log                  *slog.Logger
	chat                 services.IChatService
	identity             *services.IdentityService
	tokens               *auth.TokenManager
	validate             *validator.Validate
	upgrader             websocket.Upgrader
	connectionBufferSize int
	listLimit            int
}

func NewServer(log *slog.Logger, chat services.IChatService, identity *services.IdentityService,
	tokens *auth.TokenManager, connectionBufferSize, listLimit int) *Server {
	return &Server{
		log:      log,
		chat:     chat,
		identity: identity,
		tokens:   tokens,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connectionBufferSize: connectionBufferSize,
		listLimit:            listLimit,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	api.POST("/users", s.registerUser)
	api.POST("/tokens", s.issueToken)

	authenticated := api.Group("", s.authenticate)
	authenticated.GET("/users/:id", s.getUser)
	authenticated.POST("/users/me/deactivate", s.deactivateUser)
	authenticated.DELETE("/users/me", s.removeUser)
	authenticated.GET("/conversations", s.listConversations)
	authenticated.GET("/conversations/:id/messages", s.listMessages)
	authenticated.GET("/conversations/:id/search", s.searchMessages)
	authenticated.POST("/messages", s.submitMessage)
	authenticated.POST("/messages/:id/read", s.markRead)

	router.GET("/ws", s.connectSession)
	return router
}

// authenticate extracts the user identifier from the bearer token.
// A mismatch between the token and any claimed identity is Forbidden
// downstream; here only token validity is checked.
func (s *Server) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	claims, err := s.tokens.Validate(header[len(prefix):])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set(userIDKey, claims.UserID)
	c.Next()
}

type registerUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required,max=30"`
	LastName  string `json:"lastName" validate:"required,max=30"`
	Avatar    string `json:"avatar" validate:"omitempty,url"`
}

func (s *Server) registerUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.identity.Register(req.Email, req.FirstName, req.LastName, req.Avatar)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email})
}

type issueTokenRequest struct {
	UserID string `json:"userId" validate:"required,uuid4"`
}

// issueToken is a development stand-in for the external identity
// service. It checks the user exists and mints a session token.
func (s *Server) issueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.identity.Resolve(req.UserID); err != nil {
		s.fail(c, err)
		return
	}
	token, err := s.tokens.Generate(req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) getUser(c *gin.Context) {
	user, err := s.identity.Resolve(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"firstName":  user.FirstName,
		"lastName":   user.LastName,
		"avatar":     user.Avatar,
		"lastSeenAt": user.LastSeenAt,
	})
}

func (s *Server) deactivateUser(c *gin.Context) {
	if err := s.identity.Deactivate(c.GetString(userIDKey)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeUser(c *gin.Context) {
	if err := s.identity.Remove(c.GetString(userIDKey)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listConversations(c *gin.Context) {
	conversations, err := s.chat.Conversations(c.GetString(userIDKey))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": toConversationPayloads(conversations)})
}

type submitMessageRequest struct {
	PeerID   string   `json:"peerId" validate:"required,uuid4"`
	Kind     string   `json:"kind" validate:"required,oneof=TEXT GEOLOC PHOTO"`
	Body     string   `json:"body" validate:"max=4000"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	MediaRef string   `json:"mediaRef" validate:"max=255"`
}

func (s *Server) submitMessage(c *gin.Context) {
	var req submitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		s.fail(c, err)
		return
	}
	aux := domain.AuxData{MediaRef: req.MediaRef}
	if req.Lat != nil && req.Lon != nil {
		aux.Coordinates = &domain.Coordinates{Lat: *req.Lat, Lon: *req.Lon}
	}

	message, receipt, err := s.chat.Submit(c.Request.Context(), domain.SubmitMessage{
		AuthorID: c.GetString(userIDKey),
		PeerID:   req.PeerID,
		Kind:     kind,
		Body:     req.Body,
		Aux:      aux,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	payload := toMessagePayload(message)
	payload.DeliveryState = string(receipt.State)
	c.JSON(http.StatusCreated, payload)
}

func (s *Server) listMessages(c *gin.Context) {
	afterSeq, err := strconv.ParseUint(c.DefaultQuery("afterSeq", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid afterSeq"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(s.listLimit)))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	messages, authors, err := s.chat.ListSince(c.GetString(userIDKey), domain.ListSince{
		ConversationID: domain.ConversationID(c.Param("id")),
		AfterSeq:       afterSeq,
		Limit:          limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	payloads := make([]messagePayload, len(messages))
	for i, message := range messages {
		payloads[i] = toMessagePayload(message)
		payloads[i].Author = toAuthorPayload(authors[i])
	}
	c.JSON(http.StatusOK, gin.H{"messages": payloads})
}

func (s *Server) searchMessages(c *gin.Context) {
	terms := c.Query("q")
	if terms == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(s.listLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	messages, err := s.chat.Search(c.Request.Context(), c.GetString(userIDKey),
		domain.ConversationID(c.Param("id")), terms, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": lo.Map(messages, func(m domain.Message, _ int) messagePayload {
			return toMessagePayload(m)
		}),
	})
}

func (s *Server) markRead(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	message, err := s.chat.MarkRead(c.Request.Context(), domain.MarkRead{
		MessageID: messageID,
		ReaderID:  c.GetString(userIDKey),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toMessagePayload(message))
}

func (s *Server) fail(c *gin.Context, err error) {
	status := errors.MapToHTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
