package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	desc *ServerDescriptor
	err  error

	gotName    string
	gotSubject string
}

func (s *stubStore) GetServerByName(ctx context.Context, name, subject string) (*ServerDescriptor, error) {
	s.gotName = name
	s.gotSubject = subject
	return s.desc, s.err
}

func (s *stubStore) UpdateServerStatus(ctx context.Context, name, subject string, update StatusUpdate) error {
	return nil
}

func TestBuiltinServers(t *testing.T) {
	names := BuiltinServerNames()
	assert.ElementsMatch(t, []string{"agent-assistant", "document-fetcher", "local-models"}, names)

	assistant := BuiltinServer("agent-assistant")
	require.NotNil(t, assistant)
	assert.Equal(t, TransportDirect, assistant.Transport)
	assert.Equal(t, BuiltinModelBackend, assistant.BuiltinID)
	assert.True(t, assistant.IsModelBackend())

	fetcher := BuiltinServer("document-fetcher")
	require.NotNil(t, fetcher)
	assert.False(t, fetcher.IsModelBackend())

	assert.Nil(t, BuiltinServer("unknown"))
}

func TestResolveBuiltinNeedsNoSubject(t *testing.T) {
	r := NewResolver(nil)

	desc, err := r.Resolve(context.Background(), "local-models", "")
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Equal(t, BuiltinLocalModels, desc.BuiltinID)
}

func TestResolveBuiltinShadowsStore(t *testing.T) {
	store := &stubStore{desc: &ServerDescriptor{Name: "agent-assistant", Transport: TransportStdio, Command: "fake"}}
	r := NewResolver(store)

	desc, err := r.Resolve(context.Background(), "agent-assistant", "user-1")
	require.NoError(t, err)
	// The built-in wins; the store is never consulted.
	assert.Equal(t, TransportDirect, desc.Transport)
	assert.Empty(t, store.gotName)
}

func TestResolveUserServer(t *testing.T) {
	store := &stubStore{desc: &ServerDescriptor{Name: "github", Transport: TransportStdio, Command: "github-mcp"}}
	r := NewResolver(store)

	desc, err := r.Resolve(context.Background(), "github", "user-1")
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Equal(t, "github", store.gotName)
	assert.Equal(t, "user-1", store.gotSubject)
}

func TestResolveAnonymousSkipsStore(t *testing.T) {
	store := &stubStore{desc: &ServerDescriptor{Name: "github"}}
	r := NewResolver(store)

	desc, err := r.Resolve(context.Background(), "github", "")
	require.NoError(t, err)
	assert.Nil(t, desc)
	assert.Empty(t, store.gotName)
}

func TestResolveStoreError(t *testing.T) {
	store := &stubStore{err: errors.New("db down")}
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), "github", "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server lookup failed")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		desc    ServerDescriptor
		wantErr string
	}{
		{
			name: "valid stdio",
			desc: ServerDescriptor{Name: "s", Transport: TransportStdio, Command: "mcp"},
		},
		{
			name:    "stdio without command",
			desc:    ServerDescriptor{Name: "s", Transport: TransportStdio},
			wantErr: "missing command",
		},
		{
			name: "valid stream",
			desc: ServerDescriptor{Name: "s", Transport: TransportStream, URL: "https://x"},
		},
		{
			name:    "stream without url",
			desc:    ServerDescriptor{Name: "s", Transport: TransportStream},
			wantErr: "missing url",
		},
		{
			name:    "direct without builtin id",
			desc:    ServerDescriptor{Name: "s", Transport: TransportDirect},
			wantErr: "missing builtin id",
		},
		{
			name:    "unknown transport",
			desc:    ServerDescriptor{Name: "s", Transport: "carrier-pigeon"},
			wantErr: "unknown transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.desc)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
