package modelfile

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
)

//go:embed schema.cue
var schemaSource []byte

// cueModel mirrors #Model after defaults are applied.
type cueModel struct {
	Formula    string        `json:"formula"`
	Iterations int           `json:"iterations"`
	Variables  []cueVariable `json:"variables"`
}

type cueVariable struct {
	Name         string             `json:"name"`
	Distribution string             `json:"distribution"`
	Parameters   map[string]float64 `json:"parameters"`
}

// cue.Context is not safe for concurrent use.
var (
	cueMu     sync.Mutex
	cueCtx    *cue.Context
	cueSchema cue.Value
)

func schema() (*cue.Context, cue.Value, error) {
	if cueCtx == nil {
		ctx := cuecontext.New()
		v := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			return nil, cue.Value{}, fmt.Errorf("compile model schema: %w", err)
		}
		cueCtx, cueSchema = ctx, v.LookupPath(cue.ParsePath("#Model"))
	}
	return cueCtx, cueSchema, nil
}

// ParseCUE reads a CUE definition whose top-level "model" field is checked
// against #Model. name is used in error messages and CUE positions.
func ParseCUE(data []byte, name string, ids domain.IDGenerator) (domain.Model, error) {
	cm, err := decodeCUE(data, name)
	if err != nil {
		return domain.Model{}, &ParseError{File: name, Err: err}
	}

	vars := make([]domain.Variable, 0, len(cm.Variables))
	for _, cv := range cm.Variables {
		dist, err := domain.ParseDistribution(cv.Distribution)
		if err != nil {
			return domain.Model{}, &ParseError{File: name, Err: err}
		}
		v, err := domain.NewVariable(cv.Name, dist, cv.Parameters)
		if err != nil {
			return domain.Model{}, &ParseError{File: name, Err: err}
		}
		vars = append(vars, v)
	}

	m, err := domain.NewModel(ids.Generate(), cm.Formula, vars, cm.Iterations)
	if err != nil {
		return domain.Model{}, &ParseError{File: name, Err: err}
	}
	return m, nil
}

func decodeCUE(data []byte, name string) (cueModel, error) {
	cueMu.Lock()
	defer cueMu.Unlock()

	ctx, def, err := schema()
	if err != nil {
		return cueModel{}, err
	}

	file := ctx.CompileBytes(data, cue.Filename(name))
	if err := file.Err(); err != nil {
		return cueModel{}, err
	}
	raw := file.LookupPath(cue.ParsePath("model"))
	if !raw.Exists() {
		return cueModel{}, errors.New("no top-level model field")
	}

	v := def.Unify(raw)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cueModel{}, err
	}
	var cm cueModel
	if err := v.Decode(&cm); err != nil {
		return cueModel{}, err
	}
	return cm, nil
}
