// Package fluidra is the remote gateway to the vendor cloud API.
//
// It owns the byte-for-byte wire contract: endpoint paths, query
// parameters, the component read/write envelope, and the schedule slot
// format. Everything above this package works with decoded domain
// values; everything below it is HTTP.
//
// # Resilience
//
// Every network call consults the shared circuit breaker and rate
// limiter before touching the wire. A rejected call fails fast with
// resilience.ErrCircuitOpen or resilience.ErrRateLimited and never
// counts against the vendor's request budget.
//
// # Authentication
//
// Requests carry a bearer token from a CredentialProvider. On a 401 or
// 403 the gateway invalidates the credential and retries the request
// once with a fresh token before surfacing ErrAuth.
package fluidra
