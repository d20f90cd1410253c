// Package core holds the types shared by every layer of the nexus:
// requests, execution contexts, results and the error taxonomy.
//
// All failures reported by the dispatcher carry a *Error whose Kind is one of
// the Kind constants. Callers match them with errors.Is against the sentinel
// errors:
//
//	res := nexus.Execute(ctx, req)
//	if !res.Success && errors.Is(res.Err, core.ErrEntitlement) {
//	    // upgrade required
//	}
package core
