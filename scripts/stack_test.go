package scripts

import (
	"bytes"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func runStack(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	script := filepath.Join(filepath.Dir(thisFile), "stack.sh")

	cmd := exec.Command("bash", append([]string{script}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func TestStackScriptDryRun(t *testing.T) {
	cases := map[string][]string{
		"up": {
			"[dry-run] docker compose",
			"up -d minio",
			"[dry-run] cd",
			"go run ./cmd/sqlchat-seed",
			"exemplars push exemplars.json",
			"[dry-run] nohup env",
			"SQLCHAT_EXEMPLARS_SOURCE=s3://sqlchat/exemplars/exemplars.json",
			"stack is up",
		},
		"down": {
			"[dry-run] cd",
			"[dry-run] docker compose",
			"stack is down",
		},
	}
	for command, expected := range cases {
		out, errOut, err := runStack(t, command, "--dry-run")
		if err != nil {
			t.Fatalf("stack %s dry-run failed: %v\nstdout:\n%s\nstderr:\n%s", command, err, out, errOut)
		}
		for _, token := range expected {
			if !strings.Contains(out, token) {
				t.Fatalf("stack %s output missing %q\noutput:\n%s", command, token, out)
			}
		}
	}
}

func TestStackScriptRejectsUnknownInput(t *testing.T) {
	for _, args := range [][]string{{"not-a-command"}, {"up", "--force"}} {
		_, errOut, err := runStack(t, args...)
		if err == nil {
			t.Fatalf("stack %v: expected non-zero exit", args)
		}
		if !strings.Contains(errOut, "unknown") {
			t.Fatalf("stack %v: stderr missing unknown message:\n%s", args, errOut)
		}
	}
}
