package agent

import (
	"fmt"
	"strings"

	"github.com/snagasuri/deebo-prototype/internal/scenario"
	"github.com/snagasuri/deebo-prototype/internal/toolreg"
)

const toolCatalog = `git-mcp:
- git_status: Show working tree status
- git_diff_unstaged: Show changes in working directory not yet staged
- git_diff_staged: Show changes that are staged for commit
- git_diff: Compare current state with a branch or commit
- git_log: Show recent commit history
- git_show: Show contents of a specific commit
- git_create_branch: Create a new branch
- git_checkout: Switch to a different branch
- git_add, git_commit, git_reset: Stage, commit and unstage changes

desktop-commander:
- read_file, read_multiple_files: Read file contents
- write_file, edit_block: Write or surgically edit a file
- list_directory, search_files, search_code: Explore the repository
- get_file_info: Get file metadata
- execute_command: Run a shell command (build, tests, reproduction)

Call a tool by wrapping the request in XML:
<use_mcp_tool>
  <server_name>git-mcp</server_name>
  <tool_name>git_status</tool_name>
  <arguments>
    {"repo_path": "/path/to/repo"}
  </arguments>
</use_mcp_tool>

Several tool blocks may appear in one reply. If any block is malformed none of them run.`

func motherSystemPrompt(memoryPath string) string {
	var b strings.Builder
	b.WriteString("You are the mother agent in an OODA loop debugging investigation.\n\n")
	b.WriteString("You have access to these tools:\n\n")
	b.WriteString(toolCatalog)
	b.WriteString(`

Propose candidate explanations as <hypothesis>...</hypothesis> blocks. Every
hypothesis is investigated by its own scenario agent in an isolated process,
and all their reports come back to you together in the next message.

When you are confident in the root cause and the fix, answer with
<solution>...</solution>. The investigation ends at that point.`)
	if memoryPath != "" {
		fmt.Fprintf(&b, "\n\nYou may keep investigation notes in %s/%s using %s.",
			memoryPath, "activeContext.md", toolreg.Filesystem)
	}
	return b.String()
}

func motherBrief(p Params, memoryPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", p.Error)
	fmt.Fprintf(&b, "Context: %s\n", p.Context)
	fmt.Fprintf(&b, "Language: %s\n", p.Language)
	fmt.Fprintf(&b, "File: %s\n", p.File)
	fmt.Fprintf(&b, "Repo: %s\n", p.Repo)
	fmt.Fprintf(&b, "Session: %s\n", p.SessionID)
	fmt.Fprintf(&b, "Project: %s\n", p.ProjectID)
	if memoryPath != "" {
		fmt.Fprintf(&b, "\nPrevious debugging attempts and context are available in %s if needed.\n", memoryPath)
	}
	return b.String()
}

func scenarioSystemPrompt() string {
	return "You are a scenario agent investigating exactly one hypothesis about a bug.\n\n" +
		"You have access to these tools:\n\n" + toolCatalog + `

Work on a branch of your own if you change code. Gather evidence that
confirms or refutes the hypothesis. When you are done, answer with
<report>...</report> describing what you found, whether the hypothesis holds
and the fix if you have one. The investigation ends at that point.`
}

func scenarioBrief(a scenario.Args) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hypothesis: %s\n\n", a.Hypothesis)
	fmt.Fprintf(&b, "Error: %s\n", a.Error)
	fmt.Fprintf(&b, "Context: %s\n", a.Context)
	fmt.Fprintf(&b, "Language: %s\n", a.Language)
	fmt.Fprintf(&b, "File: %s\n", a.File)
	fmt.Fprintf(&b, "Repo: %s\n", a.Repo)
	fmt.Fprintf(&b, "Scenario: %s (session %s)\n", a.ID, a.SessionID)
	return b.String()
}

const continueNudge = "Continue the investigation. Use tools, propose <hypothesis> blocks, or give your <solution>."

const scenarioNudge = "Continue. Use tools to gather evidence, or finish with <report>...</report>."
