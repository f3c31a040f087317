package transport

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	body := bytes.NewBufferString(`{"jsonrpc":"2.0","method":"test","params":{"a":1},"id":1}`)
	req, err := ParseRequest(body)
	require.NoError(t, err)
	require.Equal(t, "2.0", req.JSONRPC)
	require.Equal(t, "test", req.Method)
	require.Equal(t, json.RawMessage(`{"a":1}`), req.Params)
}

func TestParseRequest_Invalid(t *testing.T) {
	body := bytes.NewBufferString(`{"jsonrpc":"2.0","id":1}`)
	_, err := ParseRequest(body)
	require.Error(t, err)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, 1, ErrInvalidParams, "bad params", nil)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"error"`)
}

func TestWriteResult_EncodesResult(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteResult(rec, "abc", map[string]int{"balance": 4})

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "abc", resp.ID)
	require.JSONEq(t, `{"balance":4}`, string(resp.Result))
}

func TestErrorFor_Internal(t *testing.T) {
	rpcErr := ErrorFor(ErrUnauthorized)
	require.Equal(t, ErrInternal, rpcErr.Code)
	require.Equal(t, "unauthorized", rpcErr.Message)
}
