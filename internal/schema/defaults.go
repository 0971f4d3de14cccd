package schema

import (
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
)

// defaultEnv is the environment default expressions are compiled and run
// against. Expressions are written in the schema as strings starting with
// "=", e.g. "=uuid()" or "=now()".
var defaultEnv = map[string]any{
	"now":  func() time.Time { return time.Now().UTC() },
	"uuid": func() string { return uuid.NewString() },
}

func isDefaultExpr(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "=") {
		return "", false
	}
	return strings.TrimPrefix(s, "="), true
}

func compileDefault(src string) (*vm.Program, error) {
	return expr.Compile(src, expr.Env(defaultEnv))
}

func runDefault(program *vm.Program) (any, error) {
	return expr.Run(program, defaultEnv)
}
