// Copyright (c) GroupKit Authors.
// Licensed under the MIT License.

/*
Package termination provides the composable stop-condition algebra gating run
completion.

A Condition is stateful: Evaluate is called with the messages appended since
the previous evaluation and returns a stop message once the condition fires.
Evaluating an already-terminated condition is a programming error and returns
a TERMINATION_MISUSE error; Reset restores a condition for a fresh run.

Leaf conditions: MaxMessages, TextMention, TokenBudget, HandoffTo, Timeout,
ExternalSignal, SourceMatch, OnStopMessage. And/Or combine conditions: And
fires once every child has fired across the run's history, Or fires as soon
as any child fires.
*/
package termination
