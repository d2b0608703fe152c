package gateway

import (
	"testing"

	"github.com/ucpgw/ucpgw/internal/sessions"
)

func TestRecentMessageContentsWindowsToLimit(t *testing.T) {
	session := sessions.NewSession(0)
	for i := 0; i < recentMessageWindow+5; i++ {
		session.AddMessage("user", "msg")
	}
	got := recentMessageContents(session)
	if len(got) != recentMessageWindow {
		t.Errorf("expected window of %d, got %d", recentMessageWindow, len(got))
	}
}

func TestRecentMessageContentsUnderLimitReturnsAll(t *testing.T) {
	session := sessions.NewSession(0)
	session.AddMessage("user", "hi")
	session.AddMessage("assistant", "hello")
	got := recentMessageContents(session)
	if len(got) != 2 {
		t.Errorf("expected 2 messages, got %d", len(got))
	}
	if got[0] != "hi" || got[1] != "hello" {
		t.Errorf("expected content preserved in order, got %+v", got)
	}
}
