package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soundscribe/ml-backend/internal/detection"
	"github.com/soundscribe/ml-backend/internal/events"
	"github.com/soundscribe/ml-backend/internal/model"
	"github.com/soundscribe/ml-backend/internal/worker"

	"go.uber.org/zap"
)

type stubLoader struct {
	err   error
	calls int
}

func (s *stubLoader) Load(_ context.Context, name string, progress model.ProgressFunc) (model.Handle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return model.NamedHandle(name), nil
}

type stubDetector struct {
	err        error
	writeFile  bool
	lastParams detection.Params
	calls      int
}

func (d *stubDetector) Detect(_ context.Context, params detection.Params) error {
	d.calls++
	d.lastParams = params
	if d.writeFile {
		if err := os.WriteFile(params.OutputPath, []byte("file,score\n"), 0o644); err != nil {
			return err
		}
	}
	return d.err
}

type testEnv struct {
	backend  *Backend
	out      *bytes.Buffer
	loader   *stubLoader
	detector *stubDetector
	tasks    *worker.TaskRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	out := &bytes.Buffer{}
	loader := &stubLoader{}
	detector := &stubDetector{}
	tasks := worker.NewTaskRunner(4)
	t.Cleanup(tasks.Stop)

	b := New(events.NewEmitter(out), tasks, loader, detector, zap.NewNop())

	return &testEnv{backend: b, out: out, loader: loader, detector: detector, tasks: tasks}
}

func (e *testEnv) events(t *testing.T) []events.Event {
	t.Helper()

	var out []events.Event
	for _, line := range strings.Split(strings.TrimRight(e.out.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("Output line is not a valid event: %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

func (e *testEnv) eventTypes(t *testing.T) []string {
	t.Helper()

	evs := e.events(t)
	types := make([]string, 0, len(evs))
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	return types
}

func eventData(t *testing.T, ev events.Event) map[string]any {
	t.Helper()

	data, ok := ev.Data.(map[string]any)
	if !ok {
		t.Fatalf("Event data is not an object: %v", ev.Data)
	}
	return data
}

// writeSidecar seeds a save directory with a minimal annotation-tool config.
func writeSidecar(t *testing.T, dir string) {
	t.Helper()

	doc := `{"experiments": {}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(doc), 0o644); err != nil {
		t.Fatalf("Failed to seed sidecar: %v", err)
	}
}

func TestLoadModelMissingName(t *testing.T) {
	env := newTestEnv(t)

	result := env.backend.LoadModel(context.Background(), "")
	if result.Success {
		t.Fatal("Expected failure for a missing model name")
	}

	types := env.eventTypes(t)
	if len(types) != 1 || types[0] != events.TypeError {
		t.Errorf("Expected exactly one error event, got %v", types)
	}
	if env.loader.calls != 0 {
		t.Errorf("Expected no load attempt, got %d", env.loader.calls)
	}
}

func TestLoadModelUnknownName(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Session().SetHandle(model.NamedHandle("CLAP_Jan23"))

	result := env.backend.LoadModel(context.Background(), "CLAP_Feb24")
	if result.Success {
		t.Fatal("Expected failure for an unsupported model")
	}
	if !strings.Contains(result.Error, "CLAP_Feb24") {
		t.Errorf("Expected the error to name the model, got %q", result.Error)
	}

	types := env.eventTypes(t)
	if len(types) != 1 || types[0] != events.TypeError {
		t.Errorf("Expected exactly one error event, got %v", types)
	}

	// The previously loaded handle must be left in place.
	if got := env.backend.Session().Handle(); got == nil || got.Name() != "CLAP_Jan23" {
		t.Errorf("Expected the previous handle to survive, got %v", got)
	}
}

func TestLoadModelSuccess(t *testing.T) {
	env := newTestEnv(t)

	if env.backend.Session().Loaded() {
		t.Fatal("Expected no handle before loading")
	}

	result := env.backend.LoadModel(context.Background(), "CLAP_Jan23")
	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}

	types := env.eventTypes(t)
	want := []string{events.TypeModelLoadingStarted, events.TypeModelLoadingCompleted}
	if len(types) != len(want) || types[0] != want[0] || types[1] != want[1] {
		t.Fatalf("Expected events %v, got %v", want, types)
	}

	completed := eventData(t, env.events(t)[1])
	if completed["success"] != true {
		t.Errorf("Expected success:true in completion event, got %v", completed)
	}

	if !env.backend.Session().Loaded() {
		t.Error("Expected a handle to be stored after loading")
	}
}

func TestLoadModelLoaderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.loader.err = errors.New("weights corrupt")

	result := env.backend.LoadModel(context.Background(), "CLAP_Jan23")
	if result.Success {
		t.Fatal("Expected failure when the loader errors")
	}

	evs := env.events(t)
	if len(evs) != 2 || evs[1].Type != events.TypeModelLoadingCompleted {
		t.Fatalf("Expected started+completed events, got %v", env.eventTypes(t))
	}

	completed := eventData(t, evs[1])
	if completed["success"] != false {
		t.Errorf("Expected success:false, got %v", completed)
	}
	if completed["error"] != "weights corrupt" {
		t.Errorf("Expected the loader error to be carried, got %v", completed["error"])
	}

	if env.backend.Session().Loaded() {
		t.Error("Expected no handle to be stored on failure")
	}
}

func TestDetectionWithoutModel(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeSidecar(t, dir)

	result := env.backend.RunBatchDetection(context.Background(), DetectionRequest{
		SaveDir: dir,
		Files:   []string{"a.wav"},
		Theta:   0.5,
	})

	if result.Success {
		t.Fatal("Expected failure with no model loaded")
	}

	// This failure path deliberately emits nothing.
	if got := env.eventTypes(t); len(got) != 0 {
		t.Errorf("Expected no events, got %v", got)
	}
	if env.detector.calls != 0 {
		t.Errorf("Expected the detector not to run, got %d calls", env.detector.calls)
	}
	if _, err := os.Stat(filepath.Join(dir, TempResultsName)); !os.IsNotExist(err) {
		t.Error("Expected no filesystem writes")
	}
}

func TestDetectionSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.detector.writeFile = true
	dir := t.TempDir()
	writeSidecar(t, dir)

	env.backend.Session().SetHandle(model.NamedHandle("CLAP_Jan23"))

	start := time.Now().Add(-time.Millisecond)
	result := env.backend.RunBatchDetection(context.Background(), DetectionRequest{
		SaveDir:    dir,
		Files:      []string{"a.wav", "b.wav"},
		PosPrompts: "bird song",
		NegPrompts: "wind",
		Theta:      0.7,
	})

	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}

	types := env.eventTypes(t)
	want := []string{events.TypeDetectionStarted, events.TypeDetectionCompleted}
	if len(types) != 2 || types[0] != want[0] || types[1] != want[1] {
		t.Fatalf("Expected events %v, got %v", want, types)
	}

	started := eventData(t, env.events(t)[0])
	if started["files_count"] != float64(2) {
		t.Errorf("Expected files_count 2, got %v", started["files_count"])
	}
	if started["theta"] != 0.7 {
		t.Errorf("Expected theta 0.7, got %v", started["theta"])
	}

	if env.detector.lastParams.OutputPath != filepath.Join(dir, TempResultsName) {
		t.Errorf("Expected detector output path %q, got %q", filepath.Join(dir, TempResultsName), env.detector.lastParams.OutputPath)
	}

	// The sidecar must carry the exact parameters plus a fresh timestamp.
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("Failed to read sidecar: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Sidecar is not valid JSON: %v", err)
	}
	temp := doc["experiments"].(map[string]any)["temp"].(map[string]any)
	if temp["posPrompts"] != "bird song" || temp["negPrompts"] != "wind" || temp["theta"] != 0.7 {
		t.Errorf("Sidecar record does not match the run: %v", temp)
	}
	ts, err := time.Parse(time.RFC3339Nano, temp["time"].(string))
	if err != nil {
		t.Fatalf("Sidecar time is not RFC3339: %v", err)
	}
	if ts.Before(start) {
		t.Errorf("Sidecar time %v is before the run started", ts)
	}
}

func TestDetectionNoResultsFile(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeSidecar(t, dir)
	before, _ := os.ReadFile(filepath.Join(dir, "config.json"))

	env.backend.Session().SetHandle(model.NamedHandle("CLAP_Jan23"))

	result := env.backend.RunBatchDetection(context.Background(), DetectionRequest{
		SaveDir: dir,
		Files:   []string{"a.wav"},
		Theta:   0.5,
	})

	if result.Success {
		t.Fatal("Expected failure when the results file is missing")
	}

	types := env.eventTypes(t)
	want := []string{events.TypeDetectionStarted, events.TypeError}
	if len(types) != 2 || types[1] != want[1] {
		t.Fatalf("Expected events %v, got %v", want, types)
	}

	// The sidecar must be left untouched.
	after, _ := os.ReadFile(filepath.Join(dir, "config.json"))
	if !bytes.Equal(before, after) {
		t.Error("Expected the sidecar to be untouched")
	}
}

func TestDetectionDetectorError(t *testing.T) {
	env := newTestEnv(t)
	env.detector.err = errors.New("runtime unreachable")
	dir := t.TempDir()
	writeSidecar(t, dir)

	env.backend.Session().SetHandle(model.NamedHandle("CLAP_Jan23"))

	result := env.backend.RunBatchDetection(context.Background(), DetectionRequest{SaveDir: dir, Theta: 0.5})
	if result.Success {
		t.Fatal("Expected failure when the detector errors")
	}

	evs := env.events(t)
	if len(evs) != 2 || evs[1].Type != events.TypeError {
		t.Fatalf("Expected started+error events, got %v", env.eventTypes(t))
	}

	data := eventData(t, evs[1])
	if data["save_dir"] != dir {
		t.Errorf("Expected error event tagged with save_dir, got %v", data)
	}
}

func TestDetectionSidecarFailure(t *testing.T) {
	env := newTestEnv(t)
	env.detector.writeFile = true
	dir := t.TempDir() // no sidecar seeded

	env.backend.Session().SetHandle(model.NamedHandle("CLAP_Jan23"))

	result := env.backend.RunBatchDetection(context.Background(), DetectionRequest{SaveDir: dir, Theta: 0.5})
	if result.Success {
		t.Fatal("Expected failure when the sidecar cannot be updated")
	}

	evs := env.events(t)
	if len(evs) != 2 || evs[1].Type != events.TypeError {
		t.Fatalf("Expected started+error events, got %v", env.eventTypes(t))
	}

	data := eventData(t, evs[1])
	if data["save_dir"] != dir {
		t.Errorf("Expected error event tagged with save_dir, got %v", data)
	}

	// Detection results stay on disk even though the config is out of sync.
	if _, err := os.Stat(filepath.Join(dir, TempResultsName)); err != nil {
		t.Error("Expected the results file to remain on disk")
	}
}
