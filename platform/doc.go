// Package platform defines the Capability contract between agents and AI
// platforms: a session handshake, a blocking prompt exchange, best-effort
// model switching, and an optional streaming extension.
//
// The package also ships a scriptable MockCapability for tests and examples
// and a Breaker decorator that fails fast when a platform keeps erroring.
// Real adapters over the vendor SDKs live in the anthropic and openai
// subpackages.
package platform
