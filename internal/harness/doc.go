// Package harness runs conformance scenarios against every storage backend.
//
// A scenario names a schema file and a sequence of adapter requests. Each
// backend executes the sequence on a fresh store with a deterministic clock
// and id generator, and the harness checks both the per-step expectations
// and that every backend produced byte-identical canonical responses.
//
// # Scenario Format
//
//	name: drafts_publish
//	description: "Publishing a draft replaces the canonical document"
//	schema: ../schemas/blog.cue
//	setup:
//	  - operation: create
//	    collection: users
//	    data: { id: u1, name: Ann }
//	steps:
//	  - operation: updateOne
//	    collection: posts
//	    id: p1
//	    draft: true
//	    data: { title: Draft }
//	    expect:
//	      doc: { title: Draft, _status: draft }
//	assertions:
//	  - type: final_state
//	    collection: posts
//	    id: p1
//	    expect: { title: Published }
//	  - type: count
//	    collection: posts
//	    count: 1
//
// Setup requests must succeed. Step expectations use subset semantics for
// documents: only the listed keys are compared.
//
// # Assertion Types
//
//   - final_state: finds one document by id, by where or as a global
//     (global: true) and compares a subset
//   - count: counts documents matching where
//   - not_found: the document with id does not exist
//
// # Golden Files
//
// RunWithGolden compares the canonical transcript against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
