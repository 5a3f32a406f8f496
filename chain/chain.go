// Package chain implements the ordered, short-circuitable handler chain
// used to compose client-registration rules, token-endpoint issuance
// extensions and consent processing steps.
package chain

import "context"

// Next invokes the remainder of a chain. The terminal Next is the
// identity function over the subject.
type Next[T any] func(ctx context.Context, subject T) (T, error)

// Handler processes a subject and decides whether to continue. A handler
// may call next and pass the result through, call next and post-process
// the result, or return an error without calling next, which terminates
// the chain.
type Handler[T any] interface {
	Handle(ctx context.Context, subject T, next Next[T]) (T, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc[T any] func(ctx context.Context, subject T, next Next[T]) (T, error)

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, subject T, next Next[T]) (T, error) {
	return f(ctx, subject, next)
}

// Chain is an immutable ordered list of handlers. Handlers run in
// registration order; the order is deterministic and preserved across
// Process calls. A Chain built once at process start is safe for
// concurrent use.
type Chain[T any] struct {
	handlers []Handler[T]
}

// New builds a chain from handlers in the given order.
func New[T any](handlers ...Handler[T]) *Chain[T] {
	c := &Chain[T]{handlers: make([]Handler[T], len(handlers))}
	copy(c.handlers, handlers)
	return c
}

// Append returns a new chain with the extra handlers at the end. The
// receiver is unchanged.
func (c *Chain[T]) Append(handlers ...Handler[T]) *Chain[T] {
	out := &Chain[T]{handlers: make([]Handler[T], 0, len(c.handlers)+len(handlers))}
	out.handlers = append(out.handlers, c.handlers...)
	out.handlers = append(out.handlers, handlers...)
	return out
}

// Len returns the number of handlers.
func (c *Chain[T]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.handlers)
}

// Process runs the chain over subject. An error from any handler aborts
// the remainder; the chain has no effect of its own beyond what the
// handlers did before failing, so handlers must not commit side effects
// before calling next unless they are prepared to see the chain abort.
func (c *Chain[T]) Process(ctx context.Context, subject T) (T, error) {
	if c == nil {
		return subject, nil
	}
	return c.call(ctx, 0, subject)
}

// call advances an index cursor through the handler list instead of
// building recursive closures.
func (c *Chain[T]) call(ctx context.Context, index int, subject T) (T, error) {
	if index >= len(c.handlers) {
		return subject, nil
	}
	next := func(ctx context.Context, subject T) (T, error) {
		return c.call(ctx, index+1, subject)
	}
	return c.handlers[index].Handle(ctx, subject, next)
}
