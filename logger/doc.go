// Package logger provides structured logging for pipekit using zerolog.
//
// Besides leveled logging it offers a scoped key-value context: WithScope
// attaches fields to a context.Context and every record produced through
// FromContext on that context carries them.
//
// # Usage
//
//	ctx = logger.WithScope(ctx, logger.Fields("stage", "load"))
//	logger.FromContext(ctx).Info("loading")
package logger
