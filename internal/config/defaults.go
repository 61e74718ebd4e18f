package config

import "errors"

const (
	DefaultHomeDir        = "~/.soundscribe"
	DefaultWorkers        = 4
	DefaultRuntimePort    = 8876
	DefaultRuntimeTimeout = 500
)

// The only model the backend currently accepts.
const SupportedModel = "CLAP_Jan23"

var (
	ErrHomeNotSet       = errors.New("soundscribe home directory is not set")
	ErrHomeExpandFailed = errors.New("failed to expand soundscribe home directory")
)
