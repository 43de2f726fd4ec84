// Package lookback evaluates crew-member flight currency against the
// position minimums in a threshold.Registry.
//
// evaluator.go provides the pure window checks: EvaluateOneMonth,
// EvaluateThreeMonth, EvaluateProbation, EvaluateRegression and Classify.
// None of them reads the clock; the caller supplies the target month once
// per run.
//
// Window layout for target month t (fiscal, 1 = October):
//
//	one-month     fiscal month t-1             (index t-2)
//	three-month   fiscal months t-1 .. t-3     (indices t-2 .. t-4)
//	prior window  fiscal months t-2 .. t-4     (indices t-3 .. t-5)
//
// Any index outside [0, 11] makes that window ERROR, which never escalates:
// probation and regression are false unless both lookbacks are FAIL.
//
// tier.go maps a Classification to its display tier
// (REGRESSION > PROBATION > ONE_MONTH_FAILURE > OK).
//
// batch.go fans a roster out across a bounded worker pool. Output order
// always matches input order.
package lookback
