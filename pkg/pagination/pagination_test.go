package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, DefaultLimit, Clamp(0))
	assert.Equal(t, DefaultLimit, Clamp(-3))
	assert.Equal(t, 10, Clamp(10))
	assert.Equal(t, MaxLimit, Clamp(MaxLimit+1))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 891, time.FixedZone("PHT", 8*3600)), ID: uuid.New()}

	out, err := Decode(in.Encode())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
	assert.NotContains(t, in.Encode(), "=")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	c, err := Decode("  ")
	require.NoError(t, err)
	assert.Nil(t, c)

	for _, token := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":"2026-01-01T00:00:00Z"}`)),
	} {
		_, err := Decode(token)
		assert.Error(t, err, token)
	}
}

func TestPage(t *testing.T) {
	key := func(n int) Cursor { return Cursor{ID: uuid.NewSHA1(uuid.Nil, []byte{byte(n)})} }

	rows, next := Page([]int{1, 2, 3}, 3, key)
	assert.Equal(t, []int{1, 2, 3}, rows)
	assert.Nil(t, next)

	rows, next = Page([]int{1, 2, 3, 4}, 3, key)
	assert.Equal(t, []int{1, 2, 3}, rows)
	require.NotNil(t, next)
	assert.Equal(t, key(3).ID, next.ID)
}
