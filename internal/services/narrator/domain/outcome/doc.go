// Package outcome interprets the two closed instruction sets that mutate game
// state once a game master approves them: narrative outcome triggers and
// dialogue-proposed tool calls.
//
// Every execution is independent and total. Unresolvable references are
// logged and skipped; storage failures surface as EXECUTION_ERROR for that
// one instruction and never abort siblings executed in the same batch.
package outcome
