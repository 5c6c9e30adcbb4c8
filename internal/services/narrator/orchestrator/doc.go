// Package orchestrator assembles trigger contexts from the storage ports and
// runs the trigger evaluator over a region's candidate events.
//
// Only a missing world stops a pass. Every other fetch degrades on its own:
// the failure is logged and a neutral default takes its place.
package orchestrator
