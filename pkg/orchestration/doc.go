// Package orchestration contains the Dispatcher, the entry point that runs
// annotated text through extraction, scoring and selection.
//
// Levels:
//
//	1  direct       one backend, explicit or best scoring
//	2  coordinated  as 1, with a priority/options bundle threaded through
//	3  cascade      a champion takes over from a base backend
//	4  multi-sector gated; annotations are split into sectors run concurrently
//
// Gated levels ask the Entitler first. A refusal returns at once with an
// entitlement failure and performs no extraction or scoring. When a remote
// executor is configured, entitled gated levels run remotely.
//
// Execute never returns an error and never panics: every fault, including
// a panicking backend, comes back as a failed ExecutionResult.
package orchestration
