// Package harness runs query conformance scenarios.
//
// A scenario is a YAML file holding a small provenance graph and a list of
// queries in wire form, each with its expected outcome.
//
// # Scenario Format
//
//	name: float_values
//	description: "Numeric comparisons on float attributes"
//	seed: floats
//	fixture:
//	  users:
//	    - {ref: alice, email: alice@example.com}
//	  nodes:
//	    - {ref: a, node_type: data.core.float.Float., label: a, attributes: {value: 1.5}}
//	  links:
//	    - {input: a, output: calc, type: input_calc, label: x}
//	  groups:
//	    - {ref: g, label: floats, nodes: [a]}
//	queries:
//	  - name: above_one
//	    spec:
//	      path: [{entity_type: data.core.float.Float., tag: f}]
//	      filters: {f: {attributes.value: {">": 1}}}
//	      project: {f: [label]}
//	    expect:
//	      count: 1
//	      rows: [[a]]
//	  - name: from_file
//	    spec_file: ../specs/descendants.cue
//	    max_depth: 4
//	    expect:
//	      error: INVALID_FILTER
//
// # Expectations
//
//   - count: the Count() result, which must also equal the number of rows
//   - rows: the All() rows, in order unless unordered is set
//   - error: the expected query error code
//   - sql_contains: fragments the compiled SQL must contain
//
// # Deterministic Testing
//
// Every scenario runs in a fresh in-memory SQLite database with a
// deterministic clock (testutil.DeterministicClock) and a seeded UUID
// sequence (testutil.SequentialUUIDs), so fixture IDs, UUIDs and timestamps
// are identical across runs and results can be compared against golden
// files with RunWithGolden.
package harness
