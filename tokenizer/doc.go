// Copyright (c) GroupKit Authors.
// Licensed under the MIT License.

/*
Package tokenizer provides token counters backing token-budget termination.

Two implementations of types.TokenCounter are offered:

  - Tiktoken: exact counts via BPE encodings (cl100k_base by default);
    the encoding is initialized lazily on first use and falls back to
    estimation when the encoding data cannot be loaded.
  - Estimator: a character-ratio estimator that needs no encoding data
    and distinguishes CJK from ASCII text for better accuracy than a
    naive len/4.
*/
package tokenizer
