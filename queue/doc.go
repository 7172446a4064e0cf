// Package queue implements the priority MessageQueue: one ordered mailbox
// per recipient behind a mutex-guarded registry.
//
// Messages are kept in delivery order at all times (priority descending,
// arrival order within equal priority) so receive and peek never sort.
// Mailboxes are bounded; senders get ErrMailboxFull instead of silent
// unbounded growth. Typed convenience senders cover the common
// task-request / task-response / status-update / error traffic.
package queue
