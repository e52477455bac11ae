package common

import (
	"context"
	"fmt"

	"aceinterview/internal/errors"
)

// CreateInputFunc defines how to build the backend request from the input files.
type CreateInputFunc[Input any] func(files []InputFile) (Input, error)

// LogDetailsFunc defines how to log the start of an operation.
type LogDetailsFunc[Input any] func(input Input, cfg CommandConfig)

// BackendOperationFunc is a backend call followed by any conversion into the value to render.
type BackendOperationFunc[Input, Output any] func(context.Context, Input) (Output, error)

// RunBackendCommand encapsulates the common logic for file-based CLI commands.
func RunBackendCommand[Input, Output any](
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	args []string,
	createInput CreateInputFunc[Input],
	operation BackendOperationFunc[Input, Output],
	logDetails LogDetailsFunc[Input],
) error {
	fileProcessor := NewFileProcessor(logger)
	outputHandler := NewOutputHandler(logger)

	// Fail on a bad output path before spending a backend round-trip
	if err := fileProcessor.ValidateOutputFile(cmdConfig.OutputFile); err != nil {
		return err
	}

	files, err := fileProcessor.ValidateAndReadFiles(args...)
	if err != nil {
		return err
	}

	input, err := createInput(files)
	if err != nil {
		return fmt.Errorf("failed to create input from file contents: %w", err)
	}

	if logDetails != nil {
		logDetails(input, cmdConfig)
	}

	result, err := operation(ctx, input)
	if err != nil {
		return err
	}

	return outputHandler.HandleOutput(result, cmdConfig)
}
