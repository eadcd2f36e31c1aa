// Copyright (c) GroupKit Authors.
// Licensed under the MIT License.

/*
Package runtime provides the pub/sub fabric connecting the orchestration
manager to one container per participant, plus the FIFO delivery lock both
sides use to keep sequential message kinds in strict arrival order.

The Router is an addressable topic fabric: the manager broadcasts on the
group topic, and each participant container subscribes both to the group
topic (to record history) and to its own private topic (to receive turn
requests). Delivery is at-least-once and in publish order per subscriber.

FIFOLock is a queueing synchronization primitive: Release wakes exactly the
oldest waiter, so processing order equals acquisition order even under
contention. Ordinary mutexes only guarantee exclusion, not queueing order.
*/
package runtime
