package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/folio/internal/schema"
)

const definitionFile = "folio/schema.cue"

// definition constrains the shape of a CUE schema file. Definitions are
// closed, so misspelled keys fail with their position. Field types and
// cross references are checked later by schema.Validate.
const definition = `
#Field: {
	name:          string
	type:          string
	localized?:    bool
	required?:     bool
	unique?:       bool
	index?:        bool
	defaultValue?: _
	options?: [...string]
	fields?: [...#Field]
	blocks?: [...{
		slug: string
		fields: [...#Field]
	}]
	blockRefs?: [...string]
	relationTo?: [...string]
}

#Collection: {
	timestamps?: bool
	versions?: {
		drafts?:    bool
		maxPerDoc?: int & >=0
	}
	fields: [...#Field]
}

#Schema: {
	localization?: {
		locales: [...string]
		defaultLocale: string
		fallback?:     bool
	}
	blocks?: [string]: fields: [...#Field]
	collections?: [string]: #Collection
	globals?: [string]: #Collection
}
`

// LoadCUEFile loads a single CUE file.
func LoadCUEFile(path string) (*schema.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeLoadFailed, err)
	}
	return CompileCUE(v)
}

// LoadCUEDir loads every CUE file of the package in dir.
func LoadCUEDir(dir string) (*schema.Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, cueError(ErrCodeLoadFailed, inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	return CompileCUE(v)
}

// CompileCUE checks v against the schema definition and builds the
// schema.Config it declares.
func CompileCUE(v cue.Value) (*schema.Config, error) {
	def := v.Context().CompileString(definition, cue.Filename(definitionFile)).LookupPath(cue.ParsePath("#Schema"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("compile schema definition: %w", err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: err.Error()}
	}
	return Build(&f)
}
