/*
Package llm defines the provider-facing contracts of the conversation core:
the Payload/Request/StreamChunk wire types, the ProviderClient transport
interface, the Formatter strategy interface (one conversation model, many
wire formats), per-session Config with baseline-plus-Override resolution,
and an injected provider Registry used to validate LLM switches before they
are committed.

Vendor-specific HTTP and SDK mechanics are out of scope here; they live
behind ProviderClient. Formatter implementations live in the providers
package.
*/
package llm
