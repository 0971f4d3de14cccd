package engine

import (
	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/mutation"
	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// at locates err at path unless a deeper write already located it.
func at(err error, path []string) error {
	e, ok := apperr.As(err)
	if !ok || len(e.Path) > 0 {
		return err
	}
	return e.WithPath(path...)
}

func notFound(m *schema.Model, sel mutation.Selector) *apperr.Error {
	if sel == nil {
		return apperr.ObjectNotFound(m.Name, "the current association")
	}
	return apperr.ObjectNotFound(m.Name, sel)
}

func join(path []string, segments ...string) []string {
	return append(append([]string{}, path...), segments...)
}
