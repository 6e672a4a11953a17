package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/go-playground/validator/v10"
)

// CommandHandlerFunc executes one command.
type CommandHandlerFunc func(ctx context.Context, cmd Command) error

// CommandBus is the single entry point for the write side. It validates the
// command payload, then dispatches on the command's type string. Decoders
// turn a schedule's embedded command data back into a live command.
type CommandBus struct {
	validate *validator.Validate
	handlers map[string]CommandHandlerFunc
	decoders map[string]func(data json.RawMessage) (Command, error)
}

// NewCommandBus creates an empty command bus.
func NewCommandBus() *CommandBus {
	return &CommandBus{
		validate: validator.New(),
		handlers: make(map[string]CommandHandlerFunc),
		decoders: make(map[string]func(data json.RawMessage) (Command, error)),
	}
}

// Register associates a command type with its handler.
func (b *CommandBus) Register(cmdType string, handler CommandHandlerFunc) {
	b.handlers[cmdType] = handler
}

// RegisterDecoder associates a command type with a decoder for embedded
// command data.
func (b *CommandBus) RegisterDecoder(cmdType string, decoder func(data json.RawMessage) (Command, error)) {
	b.decoders[cmdType] = decoder
}

// Dispatch validates and executes a command.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Command) error {
	if err := b.validate.Struct(cmd); err != nil {
		return domain.NewValidationError("", err.Error())
	}
	handler, ok := b.handlers[cmd.CommandType()]
	if !ok {
		return fmt.Errorf("no handler registered for command type %q", cmd.CommandType())
	}
	return handler(ctx, cmd)
}

// Decode rebuilds a command from its type tag and serialized payload.
func (b *CommandBus) Decode(cmdType string, data json.RawMessage) (Command, error) {
	decoder, ok := b.decoders[cmdType]
	if !ok {
		return nil, fmt.Errorf("no decoder registered for command type %q", cmdType)
	}
	return decoder(data)
}

// decodeInto is the generic decoder used for every registered command type.
func decodeInto[T Command](data json.RawMessage) (Command, error) {
	var cmd T
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("failed to decode %s command data: %w", cmd.CommandType(), err)
	}
	return cmd, nil
}
