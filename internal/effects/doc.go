// Package effects interprets effect trees against an immutable game state.
//
// ApplyEffects threads a shared *Budget through every nested call and
// returns the new state, the advanced RNG value, the events the effects
// emitted, and any top-level bindValue exports. It never dispatches the
// emitted events; that is the trigger package's job.
//
// Lexical scoping follows the eval.Frame model: let, forEach, rollRandom
// and createToken bind names only inside their nested block, and branches
// of if never leak bindings to their siblings.
package effects
