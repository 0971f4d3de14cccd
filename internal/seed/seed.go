// Package seed bulk-loads fixture records in dependency order.
package seed

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// Fixture maps model names to the create bodies to load for them. Bodies may
// carry nested writes like any create request.
type Fixture struct {
	Records map[string][]map[string]any
}

// Creator creates one record from a create body.
type Creator interface {
	Create(ctx context.Context, model string, data map[string]any) (map[string]any, error)
}

// Load reads a YAML (or JSON) fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return f, nil
}

func Parse(data []byte) (*Fixture, error) {
	var records map[string][]map[string]any
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &Fixture{Records: records}, nil
}

// Result counts the records created per model.
type Result map[string]int

// Runner loads fixtures through a Creator.
type Runner struct {
	creator     Creator
	graph       *schema.Graph
	concurrency int
	log         *zap.Logger
}

func NewRunner(c Creator, g *schema.Graph, concurrency int, log *zap.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{creator: c, graph: g, concurrency: concurrency, log: log}
}

// Run creates every fixture record level by level in the graph's seed
// order. Models of one level load concurrently, bounded by the runner's
// concurrency; the records of one model load in fixture order. A cycle or
// an unknown model fails before anything is written.
func (r *Runner) Run(ctx context.Context, f *Fixture) (Result, error) {
	for name := range f.Records {
		if r.graph.Model(name) == nil {
			return nil, fmt.Errorf("seed: unknown model %s", name)
		}
	}
	levels, err := r.graph.SeedOrder()
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	result := Result{}
	var mu sync.Mutex
	for i, level := range levels {
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(r.concurrency)

		var names []string
		for _, m := range level {
			if len(f.Records[m.Name]) > 0 {
				names = append(names, m.Name)
			}
		}
		sort.Strings(names)
		if len(names) == 0 {
			continue
		}
		r.log.Info("seeding level", zap.Int("level", i), zap.Strings("models", names))

		for _, name := range names {
			eg.Go(func() error {
				for j, body := range f.Records[name] {
					if err := ctx.Err(); err != nil {
						return err
					}
					if _, err := r.creator.Create(ctx, name, body); err != nil {
						return fmt.Errorf("seed %s[%d]: %w", name, j, err)
					}
					mu.Lock()
					result[name]++
					mu.Unlock()
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return result, err
		}
	}
	return result, nil
}
