// Package harness runs conformance scenarios against a datasource built from
// a manifest.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	manifest: ../manifests/library.yaml
//	now: "2024-06-15T12:00:00Z"
//	steps:
//	  - op: list
//	    collection: Novel
//	    filter: {field: name, operator: equal, value: Dune}
//	    sort: [{field: name, ascending: true}]
//	    projection: [name, label]
//	    expect:
//	      records: [{name: Dune, label: Dune by Frank}]
//	  - op: create
//	    collection: Novel
//	    records: [{name: X}]
//	    expect: {error: VALIDATION}
//	assertions:
//	  - type: record_count
//	    collection: Novel
//	    count: 3
//	  - type: final_state
//	    collection: Novel
//	    where: {name: Dune}
//	    expect: {label: Dune by Frank}
//
// The manifest path is relative to the scenario file.
//
// # Assertion Types
//
//   - final_state: the first record matching where holds the expected values
//   - record_count: the number of records matching filter
//   - schema_field: the published schema of a field holds the expected values
//
// # Deterministic Testing
//
// Every scenario builds a fresh datasource and pins the clock used by date
// operators to the scenario's now, so traces are reproducible and can be
// compared with golden snapshots.
package harness
