package enrich

import "testing"

func TestChatModelKeepsOneClientPerModel(t *testing.T) {
	m := NewChatModel("http://127.0.0.1:1/v1", "k", nil)
	a := m.client("primary")
	if m.client("primary") != a {
		t.Error("client not reused for the same model")
	}
	if m.client("fallback") == a {
		t.Error("fallback model shares the primary client")
	}
	if len(m.clients) != 2 {
		t.Errorf("clients = %d, want 2", len(m.clients))
	}
}
