// Package harness runs end-to-end drills of the whole pipeline in one
// process: a producer, N workers and a result collector sharing a fresh
// SQLite broker.
//
// # Drill Format
//
// Drills are defined in YAML files:
//
//	name: two_workers
//	description: "Two workers split 100 scenarios"
//	model: |
//	  FUNCTION: resultado = x * 2
//	  VAR: x,uniform,min=0,max=1
//	scenarios: 100
//	workers: 2
//	malformed: 3     # garbage payloads enqueued before the scenarios
//	seed: 7          # 0 samples with a random seed
//	timeout: 30s
//	expect:
//	  - type: results
//	    count: 100
//	  - type: duplicates
//	    count: 0
//	  - type: value_range
//	    min: 0
//	    max: 2
//
// The drill name doubles as the model id, so scenario ids are stable
// across runs and summaries can be compared against golden files.
//
// # Expectation Types
//
//   - results: number of result messages received equals count
//   - unique: number of distinct scenario ids equals count
//   - duplicates: results minus unique equals count
//   - dropped: dead-lettered scenario messages equals count
//   - workers_used: at least count workers produced a result
//   - value_range: every result lies within [min, max]
//
// # Completion
//
// Run returns once the scenario queue and the results queue both have
// nothing ready or leased, or when the drill timeout expires.
package harness
