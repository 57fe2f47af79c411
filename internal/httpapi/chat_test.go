package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/arcburst/deepresearch/internal/store"
)

func TestGetChatNotFoundWhenNotOwned(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := &ChatHandler{Store: &store.Store{DB: db}}
	mock.ExpectQuery(`SELECT id, user_id, title, created_at, updated_at FROM chats`).
		WithArgs("chat-1", "someone-else").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "created_at", "updated_at"}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat/chat-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "someone-else")
	c.SetParamNames("id")
	c.SetParamValues("chat-1")

	err = handler.getChat(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, he.Code)
}

func TestDeleteChatReturns404WhenNoRowsAffected(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := &ChatHandler{Store: &store.Store{DB: db}}
	mock.ExpectExec(`DELETE FROM chats`).
		WithArgs("chat-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest(http.MethodDelete, "/api/chat/chat-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "user-1")
	c.SetParamNames("id")
	c.SetParamValues("chat-1")

	err = handler.deleteChat(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, he.Code)
}

func TestListChatsReturnsOwnedChats(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := &ChatHandler{Store: &store.Store{DB: db}}
	mock.ExpectQuery(`SELECT id, user_id, title, created_at, updated_at FROM chats WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "created_at", "updated_at"}).
			AddRow("chat-1", "user-1", "t", time.Now(), time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "user-1")

	require.NoError(t, handler.listOrResume(c))
	require.Equal(t, http.StatusOK, rec.Code)
}
