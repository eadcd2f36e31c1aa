// Copyright (c) GroupKit Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type contracts of the groupkit framework.

types is the lowest-level package and depends on no other groupkit package,
so every other module (graph, termination, runtime, orchestration) can import
it without creating cycles.

# Core types

  - Message / Kind     — closed message union (text, multimodal, stop,
    handoff, tool call/result, vote, proposal, voting result) tagged by Kind
  - Thread             — ordered, append-only message history
  - TokenUsage         — cumulative prompt/completion/total token counts
  - TokenCounter       — minimal token counting contract
  - Agent / Response   — the participant contract consumed by the orchestrator
  - Error / ErrorCode  — structured error taxonomy (validation, selection,
    termination misuse, dispatch)
*/
package types
