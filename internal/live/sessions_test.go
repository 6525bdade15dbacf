package live

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

func TestSessionsTrackAndCloseAll(t *testing.T) {
	backend := newBackend()
	s := NewSessions()

	a := openView(t, backend, nil, "alice")
	b := openView(t, backend, nil, "alice")
	c := openView(t, backend, nil, "bob")
	for _, v := range []*View{a, b, c} {
		require.True(t, s.Add(v))
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, s.ByIdentity())

	s.Remove(c)
	assert.Equal(t, 2, s.Len())

	s.CloseAll()
	assert.Equal(t, 0, s.Len())
	_, err := a.SubmitAdd(context.Background(), "https://example.com", "x")
	assert.ErrorIs(t, err, ErrViewClosed)

	late := NewView(backend, nil, logger.Nop(), testOptions())
	assert.False(t, s.Add(late))
	assert.ErrorIs(t, late.Open(context.Background(), "carol"), ErrViewClosed)
}
