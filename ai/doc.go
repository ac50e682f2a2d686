// Package ai provides abstractions for the embedding services used in
// fuselage.
//
// The core domain depends on the Embedder and Provider interfaces rather
// than concrete implementations:
//
//   - ai/openai: production implementation for OpenAI-compatible APIs
//   - ai/mock: deterministic test doubles, no external dependencies
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types to enforce abstraction. Test constructors
// (mock.NewMockEmbedder) return concrete types so tests can inject
// behavior and make assertions.
//
// Provider failures worth retrying are wrapped in TransientError; callers
// check with IsTransient and back off before the next attempt.
package ai
