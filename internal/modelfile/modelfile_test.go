package modelfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/testutil"
)

func assertGolden(t *testing.T, name string, m domain.Model) {
	t.Helper()
	data, err := json.MarshalIndent(m, "", "  ")
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, append(data, '\n'))
}

func TestLoad_Golden(t *testing.T) {
	tests := []struct {
		file   string
		golden string
	}{
		{"ventas.txt", "ventas"},
		{"ventas.cue", "ventas"},
		{"minimal.txt", "minimal"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			m, err := Load(filepath.Join("testdata", "models", tt.file), testutil.NewFixedIDs("m"))
			require.NoError(t, err)
			assertGolden(t, tt.golden, m)
		})
	}
}

func TestLoad_FreshIDPerCall(t *testing.T) {
	ids := testutil.NewFixedIDs("m")
	a, err := Load("testdata/models/minimal.txt", ids)
	require.NoError(t, err)
	b, err := Load("testdata/models/minimal.txt", ids)
	require.NoError(t, err)
	assert.Equal(t, "m00000001", a.ID)
	assert.Equal(t, "m00000002", b.ID)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("testdata/models/README.md", testutil.NewFixedIDs("m"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load("testdata/models/missing.txt", testutil.NewFixedIDs("m"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseLines(t *testing.T) {
	src := `
		# comment
		FUNCTION: margin = precio - costo
		FUNCTION: resultado = margin * n
		VAR: precio, Uniform, min=10, max=20
		VAR: costo,exponential
		VAR: n,normal,mean=5,
		ITERATIONS: 42
	`
	m, err := ParseLines(strings.NewReader(src), "inline", testutil.NewFixedIDs("m"))
	require.NoError(t, err)

	assert.Equal(t, "margin = precio - costo\nresultado = margin * n", m.Formula)
	assert.Equal(t, 42, m.Iterations)
	assert.Equal(t, []string{"precio", "costo", "n"}, m.VariableNames())
	assert.Equal(t, domain.Uniform, m.Variables[0].Distribution)
	assert.Equal(t, map[string]float64{"min": 10, "max": 20}, m.Variables[0].Parameters)
	assert.Nil(t, m.Variables[1].Parameters)
	assert.Equal(t, 1.0, m.Variables[1].Param("scale"))
	assert.Equal(t, 1.0, m.Variables[2].Param("std"))
}

func TestParseLines_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		line    int
		wantErr error
		msg     string
	}{
		{"empty function", "FUNCTION:", 1, nil, "empty FUNCTION"},
		{"bad iterations", "FUNCTION: x\n\n# c\nITERATIONS: many", 4, nil, "not an integer"},
		{"short var", "FUNCTION: x\nVAR: x", 2, nil, "want name,distribution"},
		{"unknown distribution", "VAR: x,poisson,lambda=1", 1, domain.ErrUnknownDistribution, "poisson"},
		{"param without value", "VAR: x,uniform,min", 1, nil, "not key=value"},
		{"param not a number", "VAR: x,uniform,min=a", 1, nil, "not a number"},
		{"duplicate param", "VAR: x,uniform,min=1,min=2", 1, nil, "duplicate parameter"},
		{"foreign param", "VAR: x,uniform,mean=1", 1, domain.ErrInvalidModel, "mean"},
		{"bad bounds", "VAR: x,uniform,min=2,max=1", 1, domain.ErrInvalidModel, "max"},
		{"unknown directive", "FUNCTION: x\nFORMULA: y", 2, nil, "unknown directive"},
		{"missing function", "ITERATIONS: 5", 0, domain.ErrInvalidModel, "formula is required"},
		{"zero iterations", "FUNCTION: x\nITERATIONS: 0", 0, domain.ErrInvalidModel, "iterations"},
		{"duplicate variable", "FUNCTION: x\nVAR: x,normal\nVAR: x,uniform", 0, domain.ErrInvalidModel, "duplicate variable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLines(strings.NewReader(tt.src), "m.txt", testutil.NewFixedIDs("m"))
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
			assert.Equal(t, "m.txt", pe.File)
			assert.Equal(t, tt.line, pe.Line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseError_Format(t *testing.T) {
	base := errors.New("boom")
	assert.Equal(t, "m.txt:3: boom", (&ParseError{File: "m.txt", Line: 3, Err: base}).Error())
	assert.Equal(t, "line 3: boom", (&ParseError{Line: 3, Err: base}).Error())
	assert.Equal(t, "m.txt: boom", (&ParseError{File: "m.txt", Err: base}).Error())
	assert.Equal(t, "boom", (&ParseError{Err: base}).Error())
}

func TestParseCUE_Defaults(t *testing.T) {
	m, err := ParseCUE([]byte(`model: formula: "result = x"
model: variables: [{name: "x", distribution: "exponential"}]`), "d.cue", testutil.NewFixedIDs("m"))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultIterations, m.Iterations)
	require.Len(t, m.Variables, 1)
	assert.Nil(t, m.Variables[0].Parameters)
	assert.Equal(t, 1.0, m.Variables[0].Param("scale"))
}

func TestParseCUE_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `model: {`},
		{"no model field", `formula: "x"`},
		{"missing formula", `model: iterations: 5`},
		{"empty formula", `model: formula: ""`},
		{"zero iterations", `model: {formula: "x", iterations: 0}`},
		{"fractional iterations", `model: {formula: "x", iterations: 1.5}`},
		{"unknown field", `model: {formula: "x", seed: 1}`},
		{"unknown distribution", `model: {formula: "x", variables: [{name: "a", distribution: "poisson"}]}`},
		{"missing distribution", `model: {formula: "x", variables: [{name: "a"}]}`},
		{"non-numeric parameter", `model: {formula: "x", variables: [{name: "a", distribution: "normal", parameters: {mean: "high"}}]}`},
		{"foreign parameter", `model: {formula: "x", variables: [{name: "a", distribution: "normal", parameters: {min: 1}}]}`},
		{"bad identifier", `model: {formula: "x", variables: [{name: "1a", distribution: "normal"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCUE([]byte(tt.src), "bad.cue", testutil.NewFixedIDs("m"))
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
			assert.Equal(t, "bad.cue", pe.File)
		})
	}
}

func TestCatalog_List(t *testing.T) {
	entries, err := Catalog{Dir: "testdata/models"}.List()
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name+"."+string(e.Format))
	}
	assert.Equal(t, []string{"minimal.lines", "ventas.cue", "ventas.lines"}, names)
	assert.Equal(t, filepath.Join("testdata", "models", "minimal.txt"), entries[0].Path)
}

func TestCatalog_EmptyAndMissing(t *testing.T) {
	entries, err := Catalog{Dir: t.TempDir()}.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)

	_, err = Catalog{Dir: filepath.Join(t.TempDir(), "nope")}.List()
	assert.Error(t, err)
}

func TestCatalog_Find(t *testing.T) {
	c := Catalog{Dir: "testdata/models"}
	e, err := c.Find("minimal")
	require.NoError(t, err)
	assert.Equal(t, FormatLines, e.Format)

	_, err = c.Find("absent")
	assert.Error(t, err)
}
