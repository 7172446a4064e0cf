// Package orchestrator manages a bounded pool of agents and routes work to
// them.
//
// The orchestrator creates agents around platform capabilities, addresses
// tasks to specific agents or load-balances them across idle agents of a
// type, runs sequential workflows with result threading, fans batches out
// in parallel, and aggregates per-agent metrics into pool statistics.
//
// Retry behavior lives inside the agents; the orchestrator treats every
// task outcome as final. Assignment problems (unknown agent, pool at
// capacity, nobody available) surface as AgentError values, while task
// failures travel inside the TaskResult.
package orchestrator
