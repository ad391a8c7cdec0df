package channel

import (
	"sync"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// Expression is a scripted scalar channel. The script sees the evaluation time
// as `t` and must assign its result to `value`:
//
//	value := 10 * math.sin(t * 2)
//
// The math and times stdlib modules are importable.
type Expression struct {
	source   string
	mu       sync.Mutex
	compiled *tengo.Compiled
}

// timeVar holds the evaluation time. A script name time resolves to a tengo
// builtin function instead of the variable.
const timeVar = "t"

const expressionPrelude = "math := import(\"math\")\n"

// NewExpression compiles a scripted channel.
func NewExpression(source string) (*Expression, error) {
	script := tengo.NewScript([]byte(expressionPrelude + source))
	script.SetImports(stdlib.GetModuleMap("math", "times"))
	if err := script.Add(timeVar, 0.0); err != nil {
		return nil, eris.Wrap(err, "declaring time")
	}
	compiled, err := script.Compile()
	if err != nil {
		return nil, eris.Wrapf(err, "compiling expression %q", source)
	}
	if err := compiled.Run(); err != nil {
		return nil, eris.Wrapf(err, "running expression %q", source)
	}
	if !compiled.IsDefined("value") {
		return nil, eris.Errorf("expression %q never assigns value", source)
	}
	return &Expression{source: source, compiled: compiled}, nil
}

// Source returns the script text.
func (e *Expression) Source() string {
	return e.source
}

// Evaluate runs the script at time t. Script errors are logged and report no
// value.
func (e *Expression) Evaluate(t float64) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.compiled.Set(timeVar, t); err != nil {
		log.Warn().Err(err).Str("expression", e.source).Msg("setting expression time")
		return 0, false
	}
	if err := e.compiled.Run(); err != nil {
		log.Warn().Err(err).Str("expression", e.source).Msg("running expression")
		return 0, false
	}
	v := e.compiled.Get("value")
	switch v.ValueType() {
	case "float", "int":
		return v.Float(), true
	}
	return 0, false
}
