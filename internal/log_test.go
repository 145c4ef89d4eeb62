package internal

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestErrorLogFilter(t *testing.T) {
	var buf bytes.Buffer
	destLogger := log.New(&buf, "", 0)
	testErrorLogger := log.New(&ErrorLogFilter{Unwrap: destLogger}, "", 0)

	testErrorLogger.Println("http: proxy error: context canceled")
	if buf.Len() != 0 {
		t.Errorf("suppressed message was written to output: %q", buf.String())
	}
	buf.Reset()

	allowedMessage := "http: another error occurred"
	testErrorLogger.Println(allowedMessage)
	if !strings.Contains(buf.String(), allowedMessage) {
		t.Errorf("allowed message was not written to output: %q", buf.String())
	}
}

func TestFastHashStable(t *testing.T) {
	if FastHash("origin=1.2.3.4|class=solve") != FastHash("origin=1.2.3.4|class=solve") {
		t.Error("FastHash is not deterministic")
	}

	if FastHash("a") == FastHash("b") {
		t.Error("trivially distinct inputs collide")
	}
}
