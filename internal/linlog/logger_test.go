package linlog

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestSetOutputRedirectsInfoWarnError(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	Info("hello %d", 1)
	Warn("careful %s", "here")
	Error("broke %s", "it")

	out := buf.String()
	for _, want := range []string{"INFO  hello 1", "WARN  careful here", "ERROR broke it"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q does not contain %q", out, want)
		}
	}
}
