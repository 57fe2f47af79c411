package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arcburst/deepresearch/internal/ratelimit"
	"github.com/arcburst/deepresearch/internal/research"
	"github.com/arcburst/deepresearch/internal/store"
	"github.com/arcburst/deepresearch/internal/stream"
)

// ChatHandler serves the research chat surface (spec §6): create/continue
// a chat with a streamed answer, list/get/delete chats, and resume an
// in-flight or completed stream. Grounded on the teacher's RunsHandler /
// streamRuns pairing in internal/server/runs.go.
type ChatHandler struct {
	Store     *store.Store
	Limiter   *ratelimit.Limiter
	Publisher *stream.ResumablePublisher
	Driver    *research.Driver

	LocationHeader string // request header carrying a client-supplied location hint
}

// Register mounts the spec §6 surface: POST "" is the chat-turn endpoint
// (`{messages: [...], chatId?}`), GET "" resumes a stream when a chatId
// query param is present and otherwise lists the caller's chats (list is
// an added convenience beyond spec.md §6's minimal contract). GET /:id,
// GET /:id/stream, and DELETE /:id are likewise added REST endpoints; the
// spec's own resume contract is GET ""?chatId=... and is served from the
// same handler as list.
func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("", h.postChat)
	g.GET("", h.listOrResume)
	g.GET("/:id", h.getChat)
	g.GET("/:id/stream", h.resumeStream)
	g.DELETE("/:id", h.deleteChat)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type postChatRequest struct {
	Messages []chatMessage `json:"messages"`
	ChatID   string        `json:"chatId"`
}

// postChat admits the request, loads or creates the chat, and streams the
// loop's events as SSE while mirroring them into the resumable stream.
func (h *ChatHandler) postChat(c echo.Context) error {
	ctx := c.Request().Context()
	userID, _ := c.Get("user_id").(string)

	var req postChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages is required")
	}
	message := req.Messages[len(req.Messages)-1].Content
	if message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "messages is required")
	}

	decision, err := h.Limiter.Admit(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !decision.Allowed {
		h := c.Response().Header()
		h.Set("Retry-After", strconv.Itoa(int(time.Until(decision.ResetTime).Seconds())))
		h.Set("X-Rate-Limit-Limit", strconv.Itoa(decision.Limit))
		h.Set("X-Rate-Limit-Remaining", strconv.Itoa(decision.Remaining))
		h.Set("X-Rate-Limit-Reset", strconv.FormatInt(decision.ResetTime.Unix(), 10))
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	sseWriter, err := stream.NewSSEWriter(c.Response())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	chatID := req.ChatID
	var history []research.Message
	if chatID == "" {
		chatID = uuid.NewString()
		if _, err := h.Store.CreateChat(ctx, chatID, userID, message); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		sseWriter.Emit(research.StreamEvent{Kind: research.EventNewChatCreated, NewChatCreated: &research.NewChatCreatedPayload{ChatID: chatID}})
	} else {
		if _, err := h.Store.GetChat(ctx, chatID, userID); err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "chat not found")
		}
		rows, err := h.Store.ListMessages(ctx, chatID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		history = store.ToMessages(rows)
	}

	userMsgID := uuid.NewString()
	if err := h.Store.AppendMessage(ctx, store.StoredMessage{
		ID: userMsgID, ChatID: chatID, Role: research.RoleUser, Content: message,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	history = append(history, research.Message{ID: userMsgID, Role: research.RoleUser, Content: message})

	sink := stream.NewMirrorSink(ctx, sseWriter, h.Publisher, chatID)
	sctx := research.NewSystemContext(c.Request().Header.Get(h.LocationHeader), history)

	onFinish := func(ctx context.Context, finalText string) error {
		return h.Store.AppendMessage(ctx, store.StoredMessage{
			ID: uuid.NewString(), ChatID: chatID, Role: research.RoleAssistant, Content: finalText,
		})
	}

	_, runErr := h.Driver.Run(ctx, message, sctx, sink, onFinish)
	if runErr != nil {
		return nil // the driver has already emitted an error event; the SSE response is committed
	}
	if writeErr := sseWriter.Err(); writeErr != nil {
		streamErr := &research.StreamError{Reason: "write failed", Cause: writeErr}
		c.Logger().Warnf("chat %s: %v", chatID, streamErr)
	}
	return nil
}

// listOrResume serves spec §6's `GET /chat?chatId=…` resume contract when
// a chatId query param is present, and otherwise lists the caller's chats
// (an added convenience).
func (h *ChatHandler) listOrResume(c echo.Context) error {
	if chatID := c.QueryParam("chatId"); chatID != "" {
		return h.resumeStreamByID(c, chatID)
	}
	userID, _ := c.Get("user_id").(string)
	chats, err := h.Store.ListChats(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, chats)
}

func (h *ChatHandler) getChat(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	id := c.Param("id")
	chat, err := h.Store.GetChat(c.Request().Context(), id, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	messages, err := h.Store.ListMessages(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"chat": chat, "messages": messages})
}

func (h *ChatHandler) deleteChat(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	id := c.Param("id")
	deleted, err := h.Store.DeleteChat(c.Request().Context(), id, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// resumeStream replays every recorded event for a chat as SSE frames, for
// a client reconnecting mid- or post-stream (spec §4.C12, §6). Added
// REST-shaped alias of listOrResume's query-param contract.
func (h *ChatHandler) resumeStream(c echo.Context) error {
	return h.resumeStreamByID(c, c.Param("id"))
}

func (h *ChatHandler) resumeStreamByID(c echo.Context, id string) error {
	ctx := c.Request().Context()
	userID, _ := c.Get("user_id").(string)

	if _, err := h.Store.GetChat(ctx, id, userID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	active, err := h.Publisher.HasActiveStream(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !active {
		return echo.NewHTTPError(http.StatusNotFound, "no recorded stream for this chat")
	}

	events, err := h.Publisher.Replay(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	for _, raw := range events {
		if _, err := resp.Write([]byte("event: replay\n")); err != nil {
			return nil
		}
		if _, err := resp.Write([]byte("data: " + string(raw) + "\n\n")); err != nil {
			return nil
		}
	}
	flusher.Flush()
	return nil
}
