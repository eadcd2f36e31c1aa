// Copyright (c) GroupKit Authors.
// Licensed under the MIT License.

/*
Package checkpoint persists orchestration snapshots so a group run can be
stopped and resumed across process restarts.

A Checkpoint wraps an orchestration.Snapshot together with a run identity
and a creation timestamp. The Store interface abstracts the backend:

  - MemoryStore: for development and testing (default)
  - FileStore: JSON files for single-node deployments
  - RedisStore: for distributed deployments

Typical flow:

	snap := manager.Snapshot()
	cp := checkpoint.New(runID, snap)
	store.Save(ctx, cp)
	// ... later, possibly in another process:
	cp, _ := store.LoadLatest(ctx, runID)
	manager.Restore(&cp.Snapshot)
	result, _ := manager.Resume(ctx)
*/
package checkpoint
