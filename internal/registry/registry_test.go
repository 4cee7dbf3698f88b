package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancaster971/pilotproOS-sub003/internal/model"
)

func def(key string, deps ...string) model.ServiceDefinition {
	return model.ServiceDefinition{Key: key, DisplayName: key, ContainerRef: "c-" + key, Dependencies: deps, MaxRestarts: 3}
}

func TestNew_StartOrder(t *testing.T) {
	reg, err := New([]model.ServiceDefinition{
		def("frontend", "backend"),
		def("backend", "db", "cache"),
		def("db"),
		def("cache"),
	}, model.Thresholds{})
	require.NoError(t, err)

	order := reg.StartOrder()
	require.Len(t, order, 4)
	pos := make(map[string]int)
	for i, key := range order {
		pos[key] = i
	}
	assert.Less(t, pos["db"], pos["backend"])
	assert.Less(t, pos["cache"], pos["backend"])
	assert.Less(t, pos["backend"], pos["frontend"])

	assert.Equal(t, []string{"frontend", "backend", "db", "cache"}, reg.Keys())
	assert.Equal(t, 4, reg.Len())
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		defs []model.ServiceDefinition
		err  error
	}{
		{"cycle", []model.ServiceDefinition{def("a", "b"), def("b", "c"), def("c", "a")}, ErrDependencyCycle},
		{"self dependency", []model.ServiceDefinition{def("a", "a")}, ErrDependencyCycle},
		{"unknown dependency", []model.ServiceDefinition{def("a", "ghost")}, ErrUnknownService},
		{"duplicate key", []model.ServiceDefinition{def("a"), def("a")}, nil},
		{"empty key", []model.ServiceDefinition{def("")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs, model.Thresholds{})
			require.Error(t, err)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestNew_CycleListsServices(t *testing.T) {
	_, err := New([]model.ServiceDefinition{def("ok"), def("b", "a"), def("a", "b")}, model.Thresholds{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a, b")
	assert.NotContains(t, err.Error(), "ok")
}

func TestRegistry_GetReturnsCopies(t *testing.T) {
	reg, err := New([]model.ServiceDefinition{def("db"), def("engine", "db")}, model.Thresholds{CPUWarning: 70})
	require.NoError(t, err)

	got, err := reg.Get("engine")
	require.NoError(t, err)
	got.Dependencies[0] = "mutated"

	again, err := reg.Get("engine")
	require.NoError(t, err)
	assert.Equal(t, []string{"db"}, again.Dependencies)

	all := reg.Services()
	all[1].Dependencies[0] = "mutated"
	assert.Equal(t, []string{"db"}, reg.Services()[1].Dependencies)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownService)
	assert.Equal(t, 70.0, reg.Thresholds().CPUWarning)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	content := `
services:
  - key: db
    container: pilotpros-postgres-dev
  - key: backend
    container: pilotpros-backend-dev
    dependencies: [db]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "backend"}, reg.StartOrder())
}
