// Package runtime implements the backend's external collaborators against
// the CLAP inference runtime, a separate process reached over TCP.
package runtime

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soundscribe/ml-backend/internal/config"
	"github.com/soundscribe/ml-backend/internal/detection"
	"github.com/soundscribe/ml-backend/pkg/tcpclient"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

type Command string

const (
	CommandLoad   Command = "LOAD"
	CommandDetect Command = "DETECT"
)

// Model commands are text framed; detection requests carry msgpack and use
// length-prefixed frames.
const modelPrefix = "MODEL:"

type modelRequest struct {
	Command     Command `json:"command"`
	ModelID     string  `json:"model_id"`
	WeightsPath string  `json:"weights_path,omitempty"`
}

type detectRequest struct {
	Command    Command  `msgpack:"command"`
	Files      []string `msgpack:"files"`
	NegPrompts string   `msgpack:"neg_prompts"`
	PosPrompts string   `msgpack:"pos_prompts"`
	Theta      float64  `msgpack:"theta"`
	OutputPath string   `msgpack:"output_path"`
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Client speaks the runtime's framed request/response protocol. Requests go
// out one at a time; every response is a 4-byte big-endian size prefix
// followed by a JSON body.
type Client struct {
	tcp    *tcpclient.Client
	logger *zap.Logger
}

func NewClient(cfg *config.RuntimeConfig, logger *zap.Logger) (*Client, error) {
	address := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	timeout := time.Duration(cfg.Timeout) * time.Second

	tcp, err := tcpclient.NewClient(address, timeout, 1, tcpclient.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP client: %w", err)
	}

	return &Client{tcp: tcp, logger: logger}, nil
}

// LoadModel instructs the runtime to load the model, pointing it at the
// provisioned weights when we have them.
func (c *Client) LoadModel(ctx context.Context, modelID, weightsPath string) error {
	req := modelRequest{
		Command:     CommandLoad,
		ModelID:     modelID,
		WeightsPath: weightsPath,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := c.tcp.Send(ctx, modelPrefix+string(data)); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	resp, err := c.readResponse(ctx)
	if err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("failed to load model: %s", resp.Error)
	}

	return nil
}

// Detect runs batch detection; the runtime writes the results table to
// params.OutputPath as a side effect.
func (c *Client) Detect(ctx context.Context, params detection.Params) error {
	req := detectRequest{
		Command:    CommandDetect,
		Files:      params.Files,
		NegPrompts: params.NegPrompts,
		PosPrompts: params.PosPrompts,
		Theta:      params.Theta,
		OutputPath: params.OutputPath,
	}

	data, err := msgpack.Marshal(&req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := c.tcp.SendFrame(ctx, data); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	resp, err := c.readResponse(ctx)
	if err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("detection failed: %s", resp.Error)
	}

	return nil
}

func (c *Client) readResponse(ctx context.Context) (*response, error) {
	header, err := c.tcp.ReceiveFullBytes(ctx, 4)
	if err != nil {
		return nil, fmt.Errorf("failed to receive response size: %w", err)
	}

	size := binary.BigEndian.Uint32(header)
	data, err := c.tcp.ReceiveFullBytes(ctx, int(size))
	if err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}

	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

func (c *Client) Close() error {
	return c.tcp.Close()
}
