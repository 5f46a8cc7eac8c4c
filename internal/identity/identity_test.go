package identity

import (
	"strings"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	a := Hash("user_2NiWoZK2")
	b := Hash("user_2NiWoZK2")
	if a != b {
		t.Errorf("same token produced different hashes: %s vs %s", a, b)
	}
}

func TestHashDistinct(t *testing.T) {
	if Hash("alice") == Hash("bob") {
		t.Error("distinct tokens produced the same hash")
	}
}

func TestHashNeverContainsToken(t *testing.T) {
	token := "user_raw_identifier_42"
	h := Hash(token)
	if strings.Contains(string(h), token) {
		t.Error("hash leaks the raw token")
	}
}

func TestValid(t *testing.T) {
	if !Hash("anything").Valid() {
		t.Error("derived hash should be valid")
	}
	if UserHash("user_raw_identifier").Valid() {
		t.Error("raw identifier should not pass validation")
	}
	if UserHash(strings.Repeat("Z", HashLen)).Valid() {
		t.Error("non-hex string should not pass validation")
	}
}

func TestShort(t *testing.T) {
	h := Hash("alice")
	if got := h.Short(); len(got) != 8 || !strings.HasPrefix(string(h), got) {
		t.Errorf("Short() = %q, want 8-char prefix of %q", got, h)
	}
}
