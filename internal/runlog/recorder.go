// Package runlog writes the on-disk trail of a single run: the plan, every
// navigation step with its screenshot, the extraction image and the result.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/config"
	"github.com/xkilldash9x/relscout/internal/navigator"
	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/record"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	planFile    = "plan.json"
	extractFile = "extract.png"
	resultFile  = "result.json"
)

// Recorder owns one run directory. It is safe for concurrent use.
type Recorder struct {
	dir             string
	saveScreenshots bool
	logger          *zap.Logger

	mu    sync.Mutex
	steps int
}

var _ navigator.StepSink = (*Recorder)(nil)

// RunID builds the directory name for a run started at t.
func RunID(t time.Time) string {
	return fmt.Sprintf("%s-%s", t.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// New creates <cfg.Dir>/<run id>/ and returns a recorder writing into it.
func New(cfg config.RunLogConfig, started time.Time, logger *zap.Logger) (*Recorder, error) {
	dir := filepath.Join(cfg.Dir, RunID(started))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}
	logger = logger.Named("runlog")
	logger.Debug("Run directory created.", zap.String("dir", dir))
	return &Recorder{dir: dir, saveScreenshots: cfg.SaveScreenshots, logger: logger}, nil
}

// Dir is the run directory.
func (r *Recorder) Dir() string { return r.dir }

// Steps returns how many steps have been recorded.
func (r *Recorder) Steps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steps
}

// RecordPlan writes plan.json.
func (r *Recorder) RecordPlan(p plan.Plan) error {
	return r.writeJSON(planFile, p)
}

// RecordStep writes step_NN.json and, when enabled, step_NN.png.
func (r *Recorder) RecordStep(step navigator.StepResult) error {
	r.mu.Lock()
	r.steps++
	r.mu.Unlock()

	name := fmt.Sprintf("step_%02d", step.Index)
	if err := r.writeJSON(name+".json", step); err != nil {
		return err
	}
	if r.saveScreenshots && len(step.Image) > 0 {
		return r.write(name+".png", step.Image)
	}
	return nil
}

// RecordExtractImage writes extract.png. A later image replaces an earlier one.
func (r *Recorder) RecordExtractImage(image []byte) error {
	if !r.saveScreenshots {
		return nil
	}
	return r.write(extractFile, image)
}

// RecordResult writes result.json.
func (r *Recorder) RecordResult(rec record.Record) error {
	if err := r.writeJSON(resultFile, rec); err != nil {
		return err
	}
	r.logger.Info("Run recorded.", zap.String("dir", r.dir), zap.Int("steps", r.Steps()))
	return nil
}

func (r *Recorder) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return r.write(name, append(data, '\n'))
}

func (r *Recorder) write(name string, data []byte) error {
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
