// Package pipeline runs named stages in registration order.
//
// A Pipeline owns a stage table, a Parameters store restricted to declared
// keys and an unrestricted Variables store. Run hands every stage a
// stage.Scope built for that run, so later stages read earlier outputs
// through dependency inputs:
//
//	p := pipeline.New("greet",
//	    pipeline.WithParameters(pipeline.DefineParameters([]string{"name"}, nil)),
//	)
//	p.AddStage("hello", hello, []stage.Input{stage.Param("name", "who")})
//	p.AddStage("shout", shout, []stage.Input{stage.Dependency("hello", "text")})
//	res, err := p.Run(ctx, nil)
//
// Pipelines can also be declared in YAML (Manifest) and assembled from a
// Registry of stage functions with Build. Stage calls pass through
// Middleware; WithLogging, WithTracing and WithMetrics cover the usual
// observability concerns, and WithRetry calls failing stages again.
package pipeline
