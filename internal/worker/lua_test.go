package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.lua")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLuaInvokerReturnsString(t *testing.T) {
	path := writeScript(t, `
function invoke(args)
  return "transcript of " .. (args.media_path or "?")
end
`)
	out, err := LuaInvoker(path)(context.Background(), map[string]string{"media_path": "/v/a.mp4"})
	if err != nil {
		t.Fatalf("LuaInvoker error: %v", err)
	}
	if out.Text != "transcript of /v/a.mp4" {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestLuaInvokerMissingFunction(t *testing.T) {
	path := writeScript(t, `x = 1`)
	if _, err := LuaInvoker(path)(context.Background(), nil); err == nil {
		t.Error("script without invoke() should fail")
	}
}

func TestLuaInvokerNonStringReturn(t *testing.T) {
	path := writeScript(t, `
function invoke(args)
  return 42
end
`)
	if _, err := LuaInvoker(path)(context.Background(), nil); err == nil {
		t.Error("non-string return should fail")
	}
}

func TestLuaInvokerCancelledContext(t *testing.T) {
	path := writeScript(t, `
function invoke(args)
  while true do end
end
`)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := LuaInvoker(path)(ctx, nil)
	if err == nil {
		t.Fatal("looping script should be aborted by context")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("context cancellation did not stop the interpreter promptly")
	}
}

func TestScriptEngine(t *testing.T) {
	dir := t.TempDir()
	script := `
function invoke(args)
  return "objects: car, person"
end
`
	if err := os.WriteFile(filepath.Join(dir, "detect_objects.lua"), []byte(script), 0600); err != nil {
		t.Fatal(err)
	}
	e := NewScriptEngine(dir)
	got, err := e.DetectObjects(context.Background(), "/v/a.mp4")
	if err != nil {
		t.Fatalf("DetectObjects: %v", err)
	}
	if got != "objects: car, person" {
		t.Errorf("DetectObjects = %q", got)
	}
	if _, err := e.Transcribe(context.Background(), "/v/a.mp4"); err == nil {
		t.Error("missing script should return an error")
	}
}
