/*
Package types provides the shared type contracts of the conversation core.

types is the lowest-level public package. It depends on nothing inside this
module and supplies the provider-agnostic vocabulary used by agent, llm,
providers and config:

  - Message / Role / ToolCall / ImageContent / ContentPart: the internal
    conversation representation
  - ToolSchema / ToolResult: tool definition and execution outcome
  - Tokenizer / TokenCounter / EstimateTokenizer: token accounting contracts
  - Error / ErrorCode: structured error taxonomy with Retryable marking

Structural validity of messages (which fields a role may carry) is enforced
by the agent.MessageManager at insertion time, not here; this package only
defines the shapes.
*/
package types
