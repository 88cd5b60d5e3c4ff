package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/transport/http/response"
)

type SessionHandler struct {
	sessionService *app.SessionService
}

type SessionNameRequest struct {
	Name string `json:"name" binding:"max=256"`
}

func NewSessionHandler(sessionService *app.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// writeSessionError maps service errors shared by every session route.
func writeSessionError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SessionNameRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	session, err := h.sessionService.Create(c.Request.Context(), userID, req.Name)
	if err != nil {
		writeSessionError(c, err, "create session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessions, err := h.sessionService.List(c.Request.Context(), userID)
	if err != nil {
		writeSessionError(c, err, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeSessionError(c, err, "get session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Rename(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SessionNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	session, err := h.sessionService.Rename(c.Request.Context(), userID, c.Param("id"), req.Name)
	if err != nil {
		writeSessionError(c, err, "rename session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	result, err := h.sessionService.Delete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, app.ErrCascadeIncomplete) {
			slog.Error("session delete incomplete", "user_id", userID, "session_id", c.Param("id"), "err", err)
			response.ErrorWithData(c, http.StatusInternalServerError, response.CodeCascadeIncomplete,
				"session delete incomplete, retry to resume", result)
			return
		}
		writeSessionError(c, err, "delete session failed")
		return
	}
	response.OK(c, result)
}

func (h *SessionHandler) ListDocuments(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.sessionService.ListDocuments(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeSessionError(c, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *SessionHandler) ListMessages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	messages, err := h.sessionService.ListMessages(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeSessionError(c, err, "list messages failed")
		return
	}
	response.OK(c, messages)
}
