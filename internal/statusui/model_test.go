package statusui

import (
	"strings"
	"testing"
)

func TestViewShowsNoSessionsPlaceholder(t *testing.T) {
	m := Model{}
	out := m.View()
	if !strings.Contains(out, "no active sessions") {
		t.Errorf("expected placeholder row, got:\n%s", out)
	}
}

func TestViewListsSessionRows(t *testing.T) {
	m := Model{rows: []row{
		{id: "abc-123", application: "blender", state: "attached", width: 1920, height: 1080, attached: true},
	}}
	out := m.View()
	if !strings.Contains(out, "blender") || !strings.Contains(out, "1920x1080") {
		t.Errorf("expected session row rendered, got:\n%s", out)
	}
	if !strings.Contains(out, "yes") {
		t.Errorf("expected attached=yes rendered, got:\n%s", out)
	}
}
