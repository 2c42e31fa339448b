package node_registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

func echoCapability() ports.Capability {
	return ports.CapabilityFunc(func(ctx context.Context, node domain.Node, input map[string]interface{}, rc domain.RunContext) (map[string]interface{}, error) {
		return map[string]interface{}{"echo": node.ID}, nil
	})
}

func TestRegisterAndResolve(t *testing.T) {
	m := NewManager(nil)

	require.NoError(t, m.Register("http.request", echoCapability()))

	capability, err := m.Resolve("http.request")
	require.NoError(t, err)

	out, err := capability.Execute(context.Background(), domain.Node{ID: "n1", Type: "http.request"}, nil, domain.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, "n1", out["echo"])
}

func TestResolveUnknownType(t *testing.T) {
	m := NewManager(nil)

	_, err := m.Resolve("ghost.type")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestRegisterValidation(t *testing.T) {
	m := NewManager(nil)

	err := m.Register("", echoCapability())
	assert.True(t, domain.IsValidation(err))

	err = m.Register("http.request", nil)
	assert.True(t, domain.IsValidation(err))
}

func TestDuplicateRegistration(t *testing.T) {
	m := NewManager(nil)

	require.NoError(t, m.Register("http.request", echoCapability()))
	err := m.Register("http.request", echoCapability())
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

func TestUnregister(t *testing.T) {
	m := NewManager(nil)

	require.NoError(t, m.Register("http.request", echoCapability()))
	require.NoError(t, m.Unregister("http.request"))

	_, err := m.Resolve("http.request")
	assert.True(t, domain.IsNotFound(err))

	err = m.Unregister("http.request")
	assert.True(t, domain.IsNotFound(err))
}

func TestTypesSorted(t *testing.T) {
	m := NewManager(nil)

	require.NoError(t, m.Register("transform.map", echoCapability()))
	require.NoError(t, m.Register("http.request", echoCapability()))
	require.NoError(t, m.Register("trigger.manual", echoCapability()))

	assert.Equal(t, []string{"http.request", "transform.map", "trigger.manual"}, m.Types())
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Register("http.request", echoCapability()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = m.Resolve("http.request")
				_ = m.Types()
			}
		}()
	}
	wg.Wait()
}
