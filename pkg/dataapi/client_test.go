package dataapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "pub", user)
		assert.Equal(t, "priv", pass)
		assert.Equal(t, "/login", r.URL.Path)
		assert.Equal(t, "a+b@example.com", r.URL.Query().Get("email"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type":"sql_endpoint/v1","data":{"columns":[{"col":"userId","data_type":"BIGINT"}],"rows":[{"userId":"7"}],"result":{"code":200,"row_count":1}}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "pub", "priv", nil)
	resp, err := client.Get(context.Background(), "/login", url.Values{"email": {"a+b@example.com"}})
	require.NoError(t, err)
	require.Len(t, resp.Data.Rows, 1)
	assert.JSONEq(t, `{"userId":"7"}`, string(resp.Data.Rows[0]))
	assert.Equal(t, 1, resp.Data.Result.RowCount)
	assert.Equal(t, "userId", resp.Data.Columns[0].Col)
}

func TestClientPutSendsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		var got map[string]string
		assert.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "1", got["userId"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "pub", "priv", nil).Put(context.Background(), "users", map[string]string{"userId": "1"})
	require.NoError(t, err)
	assert.Empty(t, resp.Data.Rows)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad key"))
	}))
	client := NewClient(srv.URL, "pub", "wrong", nil)

	_, err := client.Get(context.Background(), "users", nil)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
	assert.Equal(t, "bad key", statusErr.Body)

	srv.Close()
	_, err = client.Get(context.Background(), "users", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
