package runtime

import (
	"context"
	"strings"

	"github.com/soundscribe/ml-backend/internal/detection"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Detector implements detection.Detector against the runtime.
type Detector struct {
	client *Client
	logger *zap.Logger
}

func NewDetector(client *Client, logger *zap.Logger) *Detector {
	return &Detector{
		client: client,
		logger: logger.Named("detector"),
	}
}

func (d *Detector) Detect(ctx context.Context, params detection.Params) error {
	d.sniffFiles(params.Files)
	return d.client.Detect(ctx, params)
}

// sniffFiles is advisory only: entries that don't look like audio are
// logged, never rejected. The runtime owns the decision of what it can
// decode.
func (d *Detector) sniffFiles(files []string) {
	for _, f := range files {
		mtype, err := mimetype.DetectFile(f)
		if err != nil {
			d.logger.Warn("Could not sniff input file", zap.String("file", f), zap.Error(err))
			continue
		}

		if !strings.HasPrefix(mtype.String(), "audio/") && !strings.HasPrefix(mtype.String(), "video/") {
			d.logger.Warn("Input file does not look like audio",
				zap.String("file", f),
				zap.String("detected_type", mtype.String()),
			)
		}
	}
}
