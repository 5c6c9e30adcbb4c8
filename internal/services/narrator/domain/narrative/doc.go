// Package narrative models narrative events and decides, from declarative
// trigger conditions, whether an event should activate.
//
// Evaluation is pure: Evaluate reads a TriggerContext snapshot built fresh
// for one pass and never performs I/O. The context is discarded after the
// pass; nothing here caches state between evaluations.
//
// An event triggers when two independent gates pass:
//   - the combinator gate (All, Any or AtLeast(n)) over every condition;
//   - the required gate: every condition flagged Required matched.
//
// An event with no conditions never triggers, whatever its logic.
package narrative
