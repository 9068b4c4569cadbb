// Package scenario implements the scenario process protocol.
//
// A scenario is a separate OS process started with one hypothesis. It
// receives everything through argv and answers exactly once: a JSON object
// on stdout when the hypothesis was investigated, or a JSON object on
// stderr when it could not be. The parent never shares memory with it.
package scenario

import (
	"errors"
	"strings"
)

// Args is the argv contract of a scenario process.
type Args struct {
	ID         string
	SessionID  string
	Error      string
	Context    string
	Hypothesis string
	Language   string
	File       string
	Repo       string
}

// Flag names, in argv order.
const (
	FlagID         = "id"
	FlagSession    = "session"
	FlagError      = "error"
	FlagContext    = "context"
	FlagHypothesis = "hypothesis"
	FlagLanguage   = "language"
	FlagFile       = "file"
	FlagRepo       = "repo"
)

// Argv renders the arguments as --flag=value pairs so values that look
// like flags survive parsing.
func (a Args) Argv() []string {
	pairs := []struct{ name, value string }{
		{FlagID, a.ID},
		{FlagSession, a.SessionID},
		{FlagError, a.Error},
		{FlagContext, a.Context},
		{FlagHypothesis, a.Hypothesis},
		{FlagLanguage, a.Language},
		{FlagFile, a.File},
		{FlagRepo, a.Repo},
	}
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, "--"+p.name+"="+p.value)
	}
	return out
}

// Validate checks the fields a scenario cannot run without.
func (a Args) Validate() error {
	var missing []string
	if a.ID == "" {
		missing = append(missing, FlagID)
	}
	if a.SessionID == "" {
		missing = append(missing, FlagSession)
	}
	if strings.TrimSpace(a.Hypothesis) == "" {
		missing = append(missing, FlagHypothesis)
	}
	if a.Repo == "" {
		missing = append(missing, FlagRepo)
	}
	if len(missing) > 0 {
		return errors.New("scenario: missing --" + strings.Join(missing, ", --"))
	}
	return nil
}
