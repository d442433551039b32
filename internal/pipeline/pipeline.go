package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(rec *types.ReviewRecord) (*types.ReviewRecord, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(rec *types.ReviewRecord) (*types.ReviewRecord, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:  mw.Name(),
				Record: current,
				Err:    err,
			}
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name(), "reviewer", rec.Reviewer)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// ProcessBatch runs every record through the chain, preserving order.
// It returns the surviving records and the number dropped.
func (p *Pipeline) ProcessBatch(batch []types.ReviewRecord) ([]types.ReviewRecord, int, error) {
	out := make([]types.ReviewRecord, 0, len(batch))
	dropped := 0
	for i := range batch {
		rec := batch[i]
		result, err := p.Process(&rec)
		if err != nil {
			return out, dropped, err
		}
		if result == nil {
			dropped++
			continue
		}
		out = append(out, *result)
	}
	return out, dropped, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// Build assembles the default chain: trim, then the optional required-field
// and dedup stages.
func Build(required []string, dedup bool, logger *slog.Logger) (*Pipeline, error) {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	if len(required) > 0 {
		mw, err := NewRequiredFieldsMiddleware(required)
		if err != nil {
			return nil, err
		}
		p.Use(mw)
	}
	if dedup {
		p.Use(NewDedupMiddleware())
	}
	return p, nil
}

// --- Built-in Middleware ---

// TrimMiddleware trims surrounding whitespace from every text field.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *types.ReviewRecord) (*types.ReviewRecord, error) {
	rec.Book = strings.TrimSpace(rec.Book)
	rec.Reviewer = strings.TrimSpace(rec.Reviewer)
	rec.Rating = strings.TrimSpace(rec.Rating)
	rec.Review = strings.TrimSpace(rec.Review)
	return rec, nil
}

// RequiredFieldsMiddleware drops records whose named fields are empty.
type RequiredFieldsMiddleware struct {
	Fields []string
}

// NewRequiredFieldsMiddleware checks that every name is a record column.
func NewRequiredFieldsMiddleware(fields []string) (*RequiredFieldsMiddleware, error) {
	for _, f := range fields {
		if columnIndex(f) < 0 {
			return nil, fmt.Errorf("unknown record field %q", f)
		}
	}
	return &RequiredFieldsMiddleware{Fields: fields}, nil
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec *types.ReviewRecord) (*types.ReviewRecord, error) {
	values := rec.Fields()
	for _, field := range m.Fields {
		i := columnIndex(field)
		if i < 0 {
			return nil, fmt.Errorf("unknown record field %q", field)
		}
		if values[i] == "" {
			return nil, nil
		}
	}
	return rec, nil
}

func columnIndex(name string) int {
	for i, c := range types.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// DedupMiddleware drops records already seen with the same reviewer and body.
// A re-rendered page repeats its reviews verbatim.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(rec *types.ReviewRecord) (*types.ReviewRecord, error) {
	key := rec.Reviewer + "\x00" + rec.Review

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return rec, nil
}
