package channel

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/store"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "broker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testModel(t *testing.T, id string) domain.Model {
	t.Helper()
	x, err := domain.NewVariable("x", domain.Uniform, map[string]float64{"min": 0, "max": 1})
	require.NoError(t, err)
	m, err := domain.NewModel(id, "resultado = x * 2", []domain.Variable{x}, 1)
	require.NoError(t, err)
	return m
}
