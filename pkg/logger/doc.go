// Package logger is the logging seam shared by every nexus component.
//
// Components take a Logger and log a message plus a field map:
//
//	log.Info("Selected backend", map[string]interface{}{
//	    "strategy": "safety_critical",
//	    "backend":  "rust",
//	})
//
// The Nexus builds one logger, tags it with its name under "component"
// and hands children to the selector, dispatcher and Pro clients. New
// maps the logging config to an implementation:
//
//   - "text": SimpleLogger, key=value lines on stderr filtered by level
//   - "json": ZapLogger over zap's production encoder
//
// WrapZap adopts a zap.Logger the host already owns, which is how the
// iln command shares one logger with its nexus. NoOpLogger is the default
// inside packages until WithLogger is given.
package logger
