package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/soundscribe/ml-backend/internal/events"
	"github.com/soundscribe/ml-backend/internal/types"
	"github.com/soundscribe/ml-backend/internal/utils/jsonutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ActionLoadModel         = "load_model"
	ActionRunBatchDetection = "run_batch_detection"
)

// maxCommandBytes bounds a single command line; detection commands carry
// whole file lists.
const maxCommandBytes = 4 * 1024 * 1024

// Run reads one JSON command per line until end-of-stream. Bad commands are
// reported as error events and never terminate the loop.
func (b *Backend) Run(ctx context.Context, input io.Reader) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCommandBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// Whitespace-only lines fall through to the parser and are
		// reported like any other malformed command.
		b.dispatch(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read command stream: %w", err)
	}

	return nil
}

func (b *Backend) dispatch(ctx context.Context, line []byte) {
	logger := b.logger.With(zap.String("command_id", uuid.NewString()))

	var command map[string]any
	if err := json.Unmarshal(line, &command); err != nil {
		logger.Warn("Discarding unparseable command", zap.Error(err))
		b.emit(events.TypeError, types.Fail(err.Error()))
		return
	}

	// Echo the command back before dispatching, valid or not.
	b.emit(events.TypeCommand, command)

	action, _ := command["action"].(string)
	logger = logger.With(zap.String("action", action))

	switch action {
	case ActionLoadModel:
		name, _ := command["modelName"].(string)
		result := b.LoadModel(ctx, name)
		logger.Info("Command finished", zap.Bool("success", result.Success))

	case ActionRunBatchDetection:
		req := DetectionRequest{Theta: DefaultTheta}
		if err := jsonutil.MapToStruct(command, &req); err != nil {
			logger.Warn("Failed to decode detection command", zap.Error(err))
			b.emit(events.TypeError, types.Fail(err.Error()))
			return
		}

		result := b.RunBatchDetection(ctx, req)
		logger.Info("Command finished", zap.Bool("success", result.Success))

	default:
		msg := fmt.Sprintf("Unknown action: %s", action)
		logger.Warn("Discarding command with unknown action")
		b.emit(events.TypeError, types.Fail(msg))
	}
}
