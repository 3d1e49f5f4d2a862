package queue

import (
	"context"
	"fmt"

	"vitalsync/internal/models"
)

// Handler performs the side effect for exactly one operation type.
// Returned errors are classified by the manager; a handler never
// mutates the operation itself.
type Handler interface {
	Handle(ctx context.Context, op *models.Operation) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, op *models.Operation) error

func (f HandlerFunc) Handle(ctx context.Context, op *models.Operation) error {
	return f(ctx, op)
}

// Registry maps the closed operation-type enumeration to handlers.
// Adding a new operation type means one handler and one Register
// call; the manager itself never changes.
type Registry struct {
	handlers map[models.OperationType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.OperationType]Handler)}
}

// Register binds a handler to an operation type. Binding the same
// type twice is a programming error.
func (r *Registry) Register(opType models.OperationType, handler Handler) error {
	if _, exists := r.handlers[opType]; exists {
		return fmt.Errorf("handler already registered for type %s", opType)
	}
	r.handlers[opType] = handler
	return nil
}

// Lookup returns the handler for a type.
func (r *Registry) Lookup(opType models.OperationType) (Handler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}
