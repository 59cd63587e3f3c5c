// Package trigger implements the depth-first trigger cascade.
//
// Triggers are scanned in declaration order. A trigger whose static event
// matcher equals the incoming event and whose match and when predicates hold
// runs its effects; the events those effects emit are dispatched
// immediately, one level deeper, before the scan continues. The trace log
// mirrors execution order exactly.
package trigger
