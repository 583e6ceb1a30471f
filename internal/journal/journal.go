// Package journal keeps an append-only record of every computed plan
// outside the primary store: JSON-lines files for replay and audit, and
// InfluxDB points for dashboards.
package journal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/deltavault/position-engine/internal/model"
)

// Journal records plans after they are stored.
type Journal interface {
	Record(ctx context.Context, p *model.PlanRecord) error
}

// FileJournal appends one JSON object per line to a file.
type FileJournal struct {
	mu   sync.Mutex
	path string
}

// NewFileJournal creates the parent directory if needed and returns a
// journal that appends to path.
func NewFileJournal(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "error creating journal directory")
	}
	return &FileJournal{path: path}, nil
}

func (j *FileJournal) Record(_ context.Context, p *model.PlanRecord) error {
	line, err := json.Marshal(p)
	if err != nil {
		return errors.Wrapf(err, "error marshal plan %s", p.ID)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "error open journal")
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return errors.Wrapf(err, "error write plan %s", p.ID)
	}
	return nil
}

// Multi fans a record out to several journals. Every journal is tried;
// the first failure is returned.
type Multi []Journal

func (m Multi) Record(ctx context.Context, p *model.PlanRecord) error {
	var first error
	for _, j := range m {
		if err := j.Record(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards records.
type Nop struct{}

func (Nop) Record(context.Context, *model.PlanRecord) error { return nil }
