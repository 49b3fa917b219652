// Package chattypes defines the core data structures and contracts shared by akashchat.
//
// # Package Organization
//
//   - core_interfaces.go: Service contract used by the service registry
//   - session_types.go: Message, SessionSettings and the ChatSession conversation state
//   - llm_types.go: StreamChunk and the CompletionClient contract
//   - search_types.go: SearchResult and the SearchClient contract
//   - catalog_types.go: model catalog entries
//   - turn_types.go: turn states, TurnSink and TurnResult
//   - errors.go: TurnError and the error kind taxonomy
//
// Conversation state is always passed explicitly; nothing in this package keeps
// ambient global state.
package chattypes
