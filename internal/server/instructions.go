package server

// serverInstructions returns the system instructions that tell the host
// AI how to use deebo effectively.
func serverInstructions() string {
	return `You have access to deebo, an autonomous debugging agent.

## WHEN TO USE deebo

Hand a bug to deebo when:
- The cause is not obvious after a first look
- Several explanations are plausible and each needs an experiment
- The user wants to keep working while the bug is investigated

deebo does not edit the user's working tree. Each hypothesis is tested by a
scenario agent on its own git branch, and the result is a proposed fix with
the evidence behind it.

## FLOW

1. Collect context first: the exact error, the relevant code, failing tests,
   what was already tried, the language.
2. Call start with repo_path (absolute), error, and that context. You get a
   session id immediately.
3. Keep helping the user. Poll check with the session id every few minutes;
   it shows the status, recent progress lines and every scenario agent.
4. If you learn something new (a log line, a test result), call
   add_observation so it lands in the session record the agents read.
5. When check reports complete, the result holds the solution. Verify it
   before applying it. If the session is stuck or no longer needed, cancel it.

## MEMORY BANK

When the memory bank is enabled, every session leaves its hypotheses and
outcome in a per-repository memory bank:
- memory_search: full-text search across past sessions
- memory_recent: newest entries of one repository (kind=progress for outcomes)
- memory_session: the full trail of one session
Search it before starting a session on a familiar repository; earlier
investigations often rule out hypotheses for free.

## RESOURCES

- deebo://sessions lists every session
- deebo://sessions/{session_id} is the same envelope check returns
- deebo://memory/{project_id}/{activeContext|progress} are the memory documents
`
}
