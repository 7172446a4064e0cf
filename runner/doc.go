// Package runner implements the query boundary of promptmux.
//
// A query is one prompt fanned out to a set of named platforms. The
// Runner resolves each platform to an agent (created on demand through
// the orchestrator, reused across queries), dispatches the prompt
// concurrently, and streams progress back as an ordered event sequence:
// query-start, then per platform a platform-start, response-chunks and a
// closing platform-complete or platform-error, and finally
// query-complete once every platform has finished.
//
// In-flight queries can be aborted individually with Cancel or
// collectively with Close.
package runner
