// Package core provides the foundational domain types shared by the
// promptmux orchestration packages. It defines:
//
//   - Tasks and task results (units of work assigned to agents)
//   - Queue messages and priorities (inter-agent mail)
//   - Lifecycle events (a closed set of kinds) and the Bus that fans
//     them out to subscribers
//   - The error taxonomy separating orchestration and model failures
//     from capability failures that are recovered into results
//
// The package intentionally keeps implementation concerns (mailbox
// registries, retry policies, concrete capabilities) out of scope,
// exposing small types so the higher-level packages can share one
// vocabulary without import cycles.
package core
