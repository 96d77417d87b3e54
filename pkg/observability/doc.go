/*
Package observability turns routing lifecycle events into metrics and structured logs.

Both Metrics.Hooks and LogHooks return domain.LifecycleHooks; combine them with
domain.ChainHooks and pass the result to parley.WithLifecycleHooks.
*/
package observability
