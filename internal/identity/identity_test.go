package identity

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderProviderResolve(t *testing.T) {
	id := uuid.New()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Actor-Id", id.String())
	req.Header.Set("X-Actor-Role", "doctor")

	actor, err := HeaderProvider{}.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, id, actor.ID)
	assert.Equal(t, RoleDoctor, actor.Role)
}

func TestHeaderProviderRejects(t *testing.T) {
	cases := []struct {
		name string
		id   string
		role string
	}{
		{name: "missing id", id: "", role: "doctor"},
		{name: "missing role", id: uuid.NewString(), role: ""},
		{name: "bad uuid", id: "not-a-uuid", role: "doctor"},
		{name: "unknown role", id: uuid.NewString(), role: "nurse"},
		{name: "system role not accepted over http", id: uuid.NewString(), role: "system"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.id != "" {
				req.Header.Set("X-Actor-Id", tc.id)
			}
			if tc.role != "" {
				req.Header.Set("X-Actor-Role", tc.role)
			}

			_, err := HeaderProvider{}.Resolve(req)
			assert.ErrorIs(t, err, ErrUnresolved)
		})
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	actor := Actor{ID: uuid.New(), Role: RoleHospital}

	ctx := WithActor(context.Background(), actor)
	got, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, actor, got)

	_, ok = ActorFromContext(context.Background())
	assert.False(t, ok)
}
