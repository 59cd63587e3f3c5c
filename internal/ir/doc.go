// Package ir defines the data model shared by every other package: values,
// the rule tree AST, game state, trigger events and the runtime error
// taxonomy.
//
// ir imports nothing internal. All other internal packages import ir.
//
// Key constraints:
//   - no float types anywhere; numbers are int64
//   - AST nodes are closed sets (sealed interfaces with unexported markers)
//   - GameState values are immutable once built
//   - JSON tags use snake_case
//   - canonical JSON (RFC 8785) is the only encoding used for digests
package ir
