// Package model defines the provider-agnostic inference abstraction used by
// every graph: a History plus the tools available to the current node goes
// in, one assistant Turn comes out.
//
// Core goals:
//   - Normalize tool call representation (ToolDefinition, core.ToolCallRequest)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (ScriptedModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface in their own
// sub-packages so graphs remain decoupled from vendor SDKs.
package model
