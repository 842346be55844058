package chatwork

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendMessage_PostsForm(t *testing.T) {
	t.Parallel()

	var gotToken, gotBody, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-ChatWorkToken")
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotBody = r.PostFormValue("body")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message_id":"1"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	err := c.SendMessage(context.Background(), "tok", "123", "hello")
	require.NoError(t, err)
	require.Equal(t, "tok", gotToken)
	require.Equal(t, "/rooms/123/messages", gotPath)
	require.Equal(t, "hello", gotBody)
}

func TestSendMessage_SurfacesErrorsArray(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":["Invalid API Token"]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	err := c.SendMessage(context.Background(), "bad", "123", "hello")
	require.Error(t, err)
	require.Equal(t, "Invalid API Token", err.Error())
}

func TestSendMessage_GenericErrorWithoutErrorsArray(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream broke"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	err := c.SendMessage(context.Background(), "tok", "123", "hello")
	require.Error(t, err)
	require.Equal(t, "API Error: 502 Bad Gateway", err.Error())
}

func TestSendMessage_RequiresTokenAndRoom(t *testing.T) {
	t.Parallel()

	c := New(Config{}, nil)
	require.Error(t, c.SendMessage(context.Background(), "", "123", "x"))
	require.Error(t, c.SendMessage(context.Background(), "tok", "", "x"))
}
