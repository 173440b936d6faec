// Package handlers contains the stage handlers that ship with the
// binary: the content-producing stages that need no external model API
// (internal linking, export formatting), trivial gate stages (queue
// admission, publish), and a scripted handler standing in for the
// model-backed stages during local runs and tests.
//
// Every handler obeys the engine contract: input is an article
// snapshot, output is a success outcome carrying only the fields of
// its own stage slot, or a failure outcome with a reason. Handlers
// never touch the store.
package handlers
