// Copyright (c) GroupKit Authors.
// Licensed under the MIT License.

/*
Package main is the groupkit command line tool.

It is mainly a smoke-test and operations companion for the library:

  - demo: runs a built-in round-robin group conversation with the
    configured logging, metrics and checkpointing, then prints the
    transcript
  - checkpoints: lists, shows and deletes persisted run checkpoints
    against the configured backend (memory, file or redis)
  - version: prints build information

Configuration follows the library defaults, a YAML file given with
--config, and GROUPKIT_* environment variables, in that order.
*/
package main
