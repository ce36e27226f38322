// Package fuzztests houses Go fuzz harnesses for the scenario pipeline
// (TOML -> type expressions -> signatures -> deduction). They guard against
// panics, hangs and results that break the deduction invariants on arbitrary
// inputs.
//
// The harnesses only read seeds from internal/scenario/testdata and never
// write corpora of their own.
package fuzztests
