// Package stage implements the binding model of a pipeline stage.
//
// A Stage wraps a Func together with the Inputs that feed it and the
// OutputMapper that names its results. Each Input resolves one argument
// through a Binding, whose source is an immediate value, a Slot of the run
// Scope read at call time, or a callback. There is no ambient state: the
// pipeline hands every resolution the *Scope of the current run.
//
//	s := stage.New(combine, []stage.Input{
//	    stage.Dependency("left", "a"),
//	    stage.Param("separator", "sep", stage.Default(" ")),
//	})
//	value, err := s.Run(ctx, scope, nil)
package stage
