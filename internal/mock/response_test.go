package mock

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONResponseEncode(t *testing.T) {
	items := []map[string]interface{}{{"id": "uuid-1", "name": "Oil Filter", "stock": 2}}
	enc, err := JSON(items).WithHeader("Content-Range", "0-0/1").encode()
	require.NoError(t, err)

	assert.Equal(t, 200, enc.Status)
	assert.JSONEq(t, `[{"id":"uuid-1","name":"Oil Filter","stock":2}]`, string(enc.Body))
	assert.Equal(t, []header{
		{Name: "Content-Range", Value: "0-0/1"},
		{Name: "Content-Type", Value: "application/json"},
	}, enc.Headers)
}

func TestEncodeKeepsExplicitContentType(t *testing.T) {
	enc, err := JSON(map[string]int{"a": 1}).WithHeader("content-type", "application/vnd.pgrst+json").encode()
	require.NoError(t, err)
	assert.Equal(t, []header{{Name: "content-type", Value: "application/vnd.pgrst+json"}}, enc.Headers)
}

func TestEncodeRawBodies(t *testing.T) {
	enc, err := Text("hello").encode()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(enc.Body))
	assert.Equal(t, "text/plain; charset=utf-8", enc.Headers[0].Value)

	enc, err = Response{Body: []byte{0x89, 0x50}}.encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50}, enc.Body)
	assert.Empty(t, enc.Headers)

	enc, err = Response{Body: json.RawMessage(`{"ok":true}`)}.encode()
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(enc.Body))
	assert.Equal(t, "application/json", enc.Headers[0].Value)
}

func TestEncodeDefaultsAndStatus(t *testing.T) {
	enc, err := Response{}.encode()
	require.NoError(t, err)
	assert.Equal(t, 200, enc.Status)
	assert.Empty(t, enc.Body)

	enc, err = Status(404).encode()
	require.NoError(t, err)
	assert.Equal(t, 404, enc.Status)

	_, err = Status(42).encode()
	assert.ErrorContains(t, err, "invalid status")
}

func TestEncodeUnencodableBody(t *testing.T) {
	_, err := JSON(math.Inf(1)).encode()
	assert.ErrorContains(t, err, "encoding body")
}

func TestWithMethodsDoNotMutate(t *testing.T) {
	base := JSON("x").WithHeader("A", "1")
	derived := base.WithHeader("B", "2").WithStatus(201)

	assert.Equal(t, map[string]string{"A": "1"}, base.Headers)
	assert.Equal(t, 200, base.Status)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, derived.Headers)
	assert.Equal(t, 201, derived.Status)
}
