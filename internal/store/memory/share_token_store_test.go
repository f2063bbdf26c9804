package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coterm/coterm/internal/models"
	"github.com/coterm/coterm/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func intptr(i int) *int { return &i }

func newToken(sessionID uuid.UUID) *models.ShareToken {
	tokenStr, err := store.NewTokenString()
	if err != nil {
		panic(err)
	}
	return &models.ShareToken{
		ID:         uuid.Must(uuid.NewV7()),
		SessionID:  sessionID,
		Token:      tokenStr,
		Permission: models.PermissionView,
		CreatedAt:  time.Now(),
	}
}

func TestMemoryShareTokenStore_GetByToken(t *testing.T) {
	t.Run("get existing token", func(t *testing.T) {
		st := NewShareTokenStore()
		ctx := context.Background()

		token := newToken(uuid.Must(uuid.NewV7()))
		require.NoError(t, st.Create(ctx, token))

		retrieved, err := st.GetByToken(ctx, token.Token)
		require.NoError(t, err)
		require.Equal(t, token.ID, retrieved.ID)
	})

	t.Run("get unknown token returns not found", func(t *testing.T) {
		st := NewShareTokenStore()

		_, err := st.GetByToken(context.Background(), "no-such-token")
		require.Equal(t, store.ErrShareTokenNotFound, err)
	})

	t.Run("lookup never increments the use count", func(t *testing.T) {
		st := NewShareTokenStore()
		ctx := context.Background()

		token := newToken(uuid.Must(uuid.NewV7()))
		token.MaxUses = intptr(1)
		require.NoError(t, st.Create(ctx, token))

		for range 5 {
			retrieved, err := st.GetByToken(ctx, token.Token)
			require.NoError(t, err)
			require.Equal(t, 0, retrieved.UseCount)
		}
	})
}

func TestMemoryShareTokenStore_Redeem(t *testing.T) {
	t.Run("redeem increments the use count", func(t *testing.T) {
		st := NewShareTokenStore()
		ctx := context.Background()

		token := newToken(uuid.Must(uuid.NewV7()))
		require.NoError(t, st.Create(ctx, token))

		redeemed, err := st.Redeem(ctx, token.Token)
		require.NoError(t, err)
		require.Equal(t, 1, redeemed.UseCount)
	})

	t.Run("expired token cannot be redeemed", func(t *testing.T) {
		st := NewShareTokenStore()
		ctx := context.Background()

		token := newToken(uuid.Must(uuid.NewV7()))
		past := time.Now().Add(-time.Minute)
		token.ExpiresAt = &past
		require.NoError(t, st.Create(ctx, token))

		_, err := st.Redeem(ctx, token.Token)
		require.Equal(t, store.ErrShareTokenExpired, err)
	})

	t.Run("zero max uses token is unusable from creation", func(t *testing.T) {
		st := NewShareTokenStore()
		ctx := context.Background()

		token := newToken(uuid.Must(uuid.NewV7()))
		token.MaxUses = intptr(0)
		require.NoError(t, st.Create(ctx, token))

		_, err := st.Redeem(ctx, token.Token)
		require.Equal(t, store.ErrShareTokenExhausted, err)
	})

	t.Run("validity is monotonic: exhausted stays exhausted", func(t *testing.T) {
		st := NewShareTokenStore()
		ctx := context.Background()

		token := newToken(uuid.Must(uuid.NewV7()))
		token.MaxUses = intptr(2)
		require.NoError(t, st.Create(ctx, token))

		_, err := st.Redeem(ctx, token.Token)
		require.NoError(t, err)
		_, err = st.Redeem(ctx, token.Token)
		require.NoError(t, err)

		for range 3 {
			_, err = st.Redeem(ctx, token.Token)
			require.Equal(t, store.ErrShareTokenExhausted, err)
		}

		retrieved, err := st.GetByToken(ctx, token.Token)
		require.NoError(t, err)
		require.Equal(t, 2, retrieved.UseCount)
	})

	t.Run("concurrent redemption never exceeds max uses", func(t *testing.T) {
		st := NewShareTokenStore()
		ctx := context.Background()

		const maxUses = 5
		const attempts = 50

		token := newToken(uuid.Must(uuid.NewV7()))
		token.MaxUses = intptr(maxUses)
		require.NoError(t, st.Create(ctx, token))

		var wg sync.WaitGroup
		results := make(chan error, attempts)
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := st.Redeem(ctx, token.Token)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		succeeded, rejected := 0, 0
		for err := range results {
			if err == nil {
				succeeded++
			} else {
				require.Equal(t, store.ErrShareTokenExhausted, err)
				rejected++
			}
		}

		require.Equal(t, maxUses, succeeded)
		require.Equal(t, attempts-maxUses, rejected)

		retrieved, err := st.GetByToken(ctx, token.Token)
		require.NoError(t, err)
		require.Equal(t, maxUses, retrieved.UseCount)
	})
}

func TestMemoryShareTokenStore_DeleteBySession(t *testing.T) {
	st := NewShareTokenStore()
	ctx := context.Background()

	sessionID := uuid.Must(uuid.NewV7())
	otherSession := uuid.Must(uuid.NewV7())

	for range 3 {
		require.NoError(t, st.Create(ctx, newToken(sessionID)))
	}
	keep := newToken(otherSession)
	require.NoError(t, st.Create(ctx, keep))

	count, err := st.DeleteBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	remaining, err := st.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Empty(t, remaining)

	_, err = st.GetByToken(ctx, keep.Token)
	require.NoError(t, err)
}

func TestMemoryShareTokenStore_ListBySession(t *testing.T) {
	st := NewShareTokenStore()
	ctx := context.Background()

	sessionID := uuid.Must(uuid.NewV7())

	first := newToken(sessionID)
	first.CreatedAt = time.Now().Add(-time.Hour)
	second := newToken(sessionID)

	require.NoError(t, st.Create(ctx, second))
	require.NoError(t, st.Create(ctx, first))

	tokens, err := st.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	require.Equal(t, first.ID, tokens[0].ID)
	require.Equal(t, second.ID, tokens[1].ID)
}
