// Package evaluable defines the narrow contract the simulator uses to turn
// a rain-language-like expression source into interpreter bytecode. The
// compiler's internals (parsing, opcode allocation) are out of scope for
// this solver -- only the call boundary is defined here.
package evaluable

import "context"

// Compiler turns an expression source string into interpreter bytecode.
type Compiler interface {
	Compile(ctx context.Context, source string) ([]byte, error)
}
