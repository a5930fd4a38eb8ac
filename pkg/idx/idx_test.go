package idx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tabauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewUserID(t *testing.T) {
	before := time.Now().Add(-time.Millisecond)
	id := idx.NewUserID()

	require.True(t, idx.ValidUserID(id))
	require.WithinDuration(t, before, idx.CreatedAt(id), time.Second)
}

func TestNewUserID_Monotonic(t *testing.T) {
	prev := idx.NewUserID()
	for range 100 {
		next := idx.NewUserID()
		require.Less(t, prev, next)
		prev = next
	}
}

func TestValidUserID(t *testing.T) {
	for _, s := range []string{"", "   ", "not-a-ulid", "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3Z"} {
		require.False(t, idx.ValidUserID(s), s)
		require.True(t, idx.CreatedAt(s).IsZero())
	}
	require.True(t, idx.ValidUserID(idx.NewRequestID()))
}
