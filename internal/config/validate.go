package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource string

// ValidationError is one schema violation.
type ValidationError struct {
	Field   string
	Message string
	Pos     token.Pos // position in schema.cue of the violated constraint, if known
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid config: %s", e.Message)
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// Validate checks c against the embedded CUE schema. The returned error
// joins one *ValidationError per violation.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	val := ctx.Encode(c)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	err := def.Unify(val).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs []error
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		errs = append(errs, &ValidationError{
			Field:   strings.TrimPrefix(strings.Join(e.Path(), "."), "#Config."),
			Message: fmt.Sprintf(format, args...),
			Pos:     e.Position(),
		})
	}
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	return errors.Join(errs...)
}
