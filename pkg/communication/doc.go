// Package communication talks to the remote ILN Pro service.
//
// Two collaborators live here:
//   - Entitler decides whether a gated level may run. StaticEntitlement
//     answers from configuration; RemoteEntitlement asks
//     GET {endpoint}/entitlements?level=N and caches the answer in a
//     memory.Memory (in-process or Redis).
//   - ProClient posts a request to POST {endpoint}/execute with a bearer
//     credential and decodes the response.
//
// Both use an otelhttp-instrumented client and forward correlation
// headers. ProClient retries transport faults with backoff behind a
// circuit breaker; a remote that answered with a failure is reported as
// a remote error and never retried.
//
//	client, err := communication.NewProClient("https://api.iln-nexus.com/v1", apiKey,
//	    communication.WithTimeout(10*time.Second))
//	resp, err := client.Execute(ctx, core.Request{Text: text, Level: core.LevelMultiSector})
//	if core.KindOf(err) == core.KindTransport {
//	    // unreachable or timed out
//	}
package communication
