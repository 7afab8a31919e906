// Package worker implements the scenario worker: the state machine that
// keeps the current model loaded, evaluates scenarios against it and
// publishes results.
//
// # States
//
//	NoModel      no model loaded; the next scenario triggers a reload
//	ModelReady   a model is loaded and the worker waits for a scenario
//	Processing   a scenario is being decoded and evaluated
//	Reloading    the scenario's model differs from the loaded one
//
// # Settlement
//
// Every scenario delivery ends with exactly one settlement:
//
//	decoded, evaluated, result published     ack
//	decoded, evaluated, result publish fails ack (result lost, counted)
//	model not parked                         requeue, then back off
//	undecodable payload                      drop
//	evaluation error                         drop
//	scenario of a model no longer parked     drop
//
// Workers share nothing in process. Run several with RunReplicas.
package worker
