package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	got := String()
	for _, want := range []string{"linechat", Version, Commit, Date} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q to contain %q", got, want)
		}
	}
}
