package mcpconn

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/snagasuri/deebo-prototype/internal/toolreg"
)

// TestHelperToolServer is not a real test. It is re-executed as a stdio
// tool server that writes DEEBO_TOOL_NOISE bytes to stderr before serving.
func TestHelperToolServer(t *testing.T) {
	if os.Getenv("DEEBO_TOOL_HELPER") != "1" {
		return
	}
	noise, _ := strconv.Atoi(os.Getenv("DEEBO_TOOL_NOISE"))
	line := strings.Repeat("npm warn install chatter ", 3) + "\n"
	for written := 0; written < noise; written += len(line) {
		fmt.Fprint(os.Stderr, line)
	}
	if err := server.ServeStdio(newGitServer()); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func helperTool() toolreg.Resolved {
	return toolreg.Resolved{
		Name:    toolreg.Git,
		Command: os.Args[0],
		Args:    []string{"-test.run=^TestHelperToolServer$"},
	}
}

func TestStdioDialer_NoisyStderr(t *testing.T) {
	for _, noise := range []int{1024, 256 * 1024} {
		t.Run(strconv.Itoa(noise), func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			dial := StdioDialer([]string{"DEEBO_TOOL_HELPER=1", "DEEBO_TOOL_NOISE=" + strconv.Itoa(noise)}, zap.New(core))

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			c, err := dial(ctx, helperTool())
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			defer func() { _ = c.Close() }()

			res, err := c.CallTool(ctx, "git_status", map[string]any{"repo_path": "/repo"})
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			if res.IsError {
				t.Fatalf("result = %+v", res)
			}
			deadline := time.Now().Add(5 * time.Second)
			for logs.FilterMessage("tool server stderr").Len() == 0 {
				if time.Now().After(deadline) {
					t.Fatal("stderr lines were not logged")
				}
				time.Sleep(10 * time.Millisecond)
			}
		})
	}
}
