package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codecup-codeday/rctf-spooky/internal/spec"
)

const fixtureSource = "../compiler/testdata/ctf"

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestGeneratePipeline_DryRun_TS(t *testing.T) {
	t.Parallel()
	outDir := filepath.Join(t.TempDir(), "out-ts")

	out, _, err := execute(t, "--no-color", "generate", "--source", fixtureSource, "--out", outDir, "--dry-run")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "Planned writes to") || !strings.Contains(out, "(5 files)") {
		t.Fatalf("expected dry-run plan output, got: %s", out)
	}
	for _, f := range []string{"- contract.json", "- index.ts", "- perms.ts", "- responses.ts", "- routes.ts"} {
		if !strings.Contains(out, f) {
			t.Errorf("plan missing %s:\n%s", f, out)
		}
	}
	// Dry-run should not create the directory
	if _, err := os.Stat(outDir); err == nil {
		t.Fatalf("expected no writes on dry-run")
	}
}

func TestGeneratePipeline_Go(t *testing.T) {
	t.Parallel()
	outDir := filepath.Join(t.TempDir(), "out-go")

	_, logs, err := execute(t, "--no-color", "generate", "--source", fixtureSource, "--lang", "go", "--out", outDir, "--package-name", "ctfapi")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	src, err := os.ReadFile(filepath.Join(outDir, "contract.go"))
	if err != nil {
		t.Fatalf("read contract.go: %v", err)
	}
	if !strings.HasPrefix(string(src), "// Code generated by apitypes. DO NOT EDIT.") || !strings.Contains(string(src), "package ctfapi") {
		t.Fatalf("unexpected contract.go header:\n%.200s", src)
	}
	if !strings.Contains(logs, "wrote contract") {
		t.Fatalf("expected completion log, got: %s", logs)
	}

	// A second run into the same directory needs --force.
	_, _, err = execute(t, "generate", "--source", fixtureSource, "--lang", "go", "--out", outDir)
	if !errors.Is(err, ErrUsage) || !strings.Contains(err.Error(), "--force") {
		t.Fatalf("expected usage error mentioning --force, got %v", err)
	}

	out, _, err := execute(t, "-v", "generate", "--source", fixtureSource, "--lang", "go", "--out", outDir, "--package-name", "ctfapi", "--force", "--dry-run")
	if err != nil {
		t.Fatalf("forced dry run: %v", err)
	}
	if !strings.Contains(out, "- contract.go (unchanged)") {
		t.Fatalf("expected unchanged marker in verbose plan, got: %s", out)
	}
}

func TestCheck_Summary(t *testing.T) {
	t.Parallel()
	out, _, err := execute(t, "--no-color", "--verbose", "check", "--source", fixtureSource)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "✓ 7 response kinds, 7 roles, 5 routes") {
		t.Fatalf("unexpected summary: %s", out)
	}
	if !strings.Contains(out, "/admin/users/:id") || !strings.Contains(out, "perms=9") {
		t.Fatalf("verbose listing missing admin route: %s", out)
	}
}

func TestCheck_ReportsCompileErrors(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	files := map[string]string{
		"perms.yml":        "A: [B]\nB: [A]\n",
		"responses/ok.yml": "status: 200\nmessage: ok\n",
		"routes/ping.yml":  "method: GET\npath: /ping\nresponses: [ok]\n",
	}
	for rel, body := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	_, report, err := execute(t, "--no-color", "check", "--source", root)
	if !errors.Is(err, ErrCompile) {
		t.Fatalf("expected compile error, got %v", err)
	}
	if !spec.HasCode(err, spec.UnresolvableReference) {
		t.Fatalf("error chain lost the structured error: %v", err)
	}
	if ExitCode(err) != 1 {
		t.Fatalf("exit code: %d", ExitCode(err))
	}
	for _, want := range []string{"✗ UnresolvableReference", "perms.yml", "roles: A, B"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}
