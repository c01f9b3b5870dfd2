// Package plan reads declarative analysis plans and builds them into a
// graph.Analysis.
//
// A plan names its datasets and components once and wires them by name:
//
//	name: mean-age
//	privacy:
//	  distance: approximate
//	datasets:
//	  - name: census
//	    path: census.csv
//	    column_names: [age, income]
//	nodes:
//	  - name: age
//	    op: Index
//	    refs: {data: census}
//	    args: {columns: age}
//	  - name: mean
//	    op: DPMean
//	    refs: {data: age}
//	    constraints: {data_lower: 0, data_upper: 100, data_n: 1000}
//	    privacy_usage: [{epsilon: 0.65, delta: 1.0e-6}]
//
// Plans are written in YAML (or JSON) or CUE. CUE plans are checked
// against the #Plan schema before decoding; both formats then go through
// the same strict decoder, so unknown fields are rejected either way.
//
// Refs may only name datasets and nodes declared earlier in the plan.
package plan
