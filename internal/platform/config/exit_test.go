package config

import (
	"bytes"
	"testing"
)

func TestExitfWritesMessageAndExitsWithOne(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	prevStderr, prevExit := stderr, exit
	stderr = &buf
	exit = func(c int) { code = c }
	t.Cleanup(func() { stderr, exit = prevStderr, prevExit })

	Exitf("parse flags: %s", "unknown flag -nope")

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if got, want := buf.String(), "parse flags: unknown flag -nope\n"; got != want {
		t.Fatalf("stderr = %q, want %q", got, want)
	}
}
