// Package backend implements the command-driven core of the ML backend:
// a session holding the loaded model and the two operations the annotation
// tool can invoke against it.
package backend

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/soundscribe/ml-backend/internal/config"
	"github.com/soundscribe/ml-backend/internal/detection"
	"github.com/soundscribe/ml-backend/internal/events"
	"github.com/soundscribe/ml-backend/internal/experiments"
	"github.com/soundscribe/ml-backend/internal/model"
	"github.com/soundscribe/ml-backend/internal/types"
	"github.com/soundscribe/ml-backend/internal/utils/pathutil"
	"github.com/soundscribe/ml-backend/internal/worker"

	"go.uber.org/zap"
)

// TempResultsName is the fixed results table the detector writes into the
// save directory. Its existence is the authoritative success signal.
const TempResultsName = "temp.csv"

// DefaultTheta is the detection threshold used when the command omits one.
const DefaultTheta = 0.5

type Backend struct {
	session  *Session
	emitter  *events.Emitter
	tasks    *worker.TaskRunner
	loader   model.Loader
	detector detection.Detector
	logger   *zap.Logger
}

func New(emitter *events.Emitter, tasks *worker.TaskRunner, loader model.Loader, detector detection.Detector, logger *zap.Logger) *Backend {
	return &Backend{
		session:  NewSession(),
		emitter:  emitter,
		tasks:    tasks,
		loader:   loader,
		detector: detector,
		logger:   logger.Named("backend"),
	}
}

func (b *Backend) Session() *Session {
	return b.session
}

// emit sends an event, logging (but otherwise swallowing) sink failures so
// a broken pipe never turns into a second error path inside an operation.
func (b *Backend) emit(eventType string, data any) {
	if err := b.emitter.Emit(eventType, data); err != nil {
		b.logger.Error("Failed to emit event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// progress forwards loader progress notifications onto the event stream.
func (b *Backend) progress(eventType string, data map[string]any) {
	b.emit(eventType, data)
}

// LoadModel validates the model name and loads it on the task runner,
// replacing the session's handle on success.
func (b *Backend) LoadModel(ctx context.Context, modelName string) types.Result {
	if modelName == "" {
		msg := "Missing model_name"
		b.emit(events.TypeError, types.Fail(msg))
		return types.Fail(msg)
	}

	if modelName != config.SupportedModel {
		msg := fmt.Sprintf("Unknown model: %s. Only %s is supported.", modelName, config.SupportedModel)
		b.emit(events.TypeError, types.Fail(msg))
		return types.Fail(msg)
	}

	b.emit(events.TypeModelLoadingStarted, map[string]any{"model_name": modelName})

	var (
		handle model.Handle
		err    error
	)
	b.tasks.RunWait(func() {
		handle, err = b.loader.Load(ctx, modelName, b.progress)
	})

	if err != nil {
		b.emit(events.TypeModelLoadingCompleted, map[string]any{
			"model_name": modelName,
			"success":    false,
			"error":      err.Error(),
		})
		return types.Fail(err.Error())
	}

	b.session.SetHandle(handle)
	b.emit(events.TypeModelLoadingCompleted, map[string]any{
		"model_name": modelName,
		"success":    true,
	})

	return types.Ok(fmt.Sprintf("Model %s loaded successfully", modelName))
}

// DetectionRequest carries the parameters of a run_batch_detection command.
type DetectionRequest struct {
	SaveDir    string   `json:"saveDir"`
	Files      []string `json:"files"`
	PosPrompts string   `json:"posPrompts"`
	NegPrompts string   `json:"negPrompts"`
	Theta      float64  `json:"theta"`
}

// RunBatchDetection runs inference over the request's files on the task
// runner and records the run in the save directory's sidecar config.
func (b *Backend) RunBatchDetection(ctx context.Context, req DetectionRequest) types.Result {
	// No event on this path: the controlling UI only sees the return
	// value when no model is loaded.
	if !b.session.Loaded() {
		return types.Fail("Model not loaded. Please load a model first.")
	}

	b.emit(events.TypeDetectionStarted, map[string]any{
		"save_dir":    req.SaveDir,
		"files_count": len(req.Files),
		"pos_prompts": req.PosPrompts,
		"neg_prompts": req.NegPrompts,
		"theta":       req.Theta,
	})

	tempPath := filepath.Join(req.SaveDir, TempResultsName)

	var err error
	b.tasks.RunWait(func() {
		err = b.detector.Detect(ctx, detection.Params{
			Files:      req.Files,
			PosPrompts: req.PosPrompts,
			NegPrompts: req.NegPrompts,
			Theta:      req.Theta,
			OutputPath: tempPath,
		})
	})

	if err != nil {
		b.emitDetectionError(req.SaveDir, err.Error())
		return types.Fail(err.Error())
	}

	// The detector reports success through the filesystem: no results
	// table means the run silently failed.
	if !pathutil.Exists(tempPath) {
		msg := "Detection results file was not created"
		b.emit(events.TypeError, types.Fail(msg))
		return types.Fail(msg)
	}

	if err := experiments.RecordTemp(req.SaveDir, req.PosPrompts, req.NegPrompts, req.Theta); err != nil {
		b.emitDetectionError(req.SaveDir, err.Error())
		return types.Fail(err.Error())
	}

	b.emit(events.TypeDetectionCompleted, map[string]any{
		"success": true,
		"message": "Detection completed.",
	})

	return types.Ok("Detection completed.")
}

func (b *Backend) emitDetectionError(saveDir, errMsg string) {
	b.emit(events.TypeError, map[string]any{
		"save_dir": saveDir,
		"success":  false,
		"error":    errMsg,
	})
}
