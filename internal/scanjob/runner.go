package scanjob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// ExecRunner invokes an external scan tool binary. The artifact path is
// appended to the configured arguments and the XML report is expected on
// the tool's stdout.
type ExecRunner struct {
	Path string
	Args []string
}

func (r *ExecRunner) Run(ctx context.Context, artifactPath string) (io.ReadCloser, error) {
	if r == nil || r.Path == "" {
		return nil, fmt.Errorf("scan tool is not configured")
	}
	args := append(append([]string(nil), r.Args...), artifactPath)
	cmd := exec.CommandContext(ctx, r.Path, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", r.Path, err)
	}
	return io.NopCloser(bytes.NewReader(out)), nil
}
