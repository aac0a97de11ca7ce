/*
Package agent hosts the conversation core: per-session message management,
system prompt assembly, the tool-calling completion loop and the session
lifecycle.

# Core types

  - MessageManager: validated history, token accounting and lazy compression.
  - PromptManager: prioritized system prompt contributors.
  - Service: the provider call / tool execution loop for one user turn.
  - Session: one isolated conversation, switchable between LLMs mid-life.
  - EventBus: fire-and-forget lifecycle notifications for UIs.

Histories are stored in a provider-neutral representation; wire formatting
is delegated to the llm.Formatter chosen by the session's configuration, so
switching providers never rewrites stored messages.
*/
package agent
