//go:build windows

package probe

import "testing"

func TestParseTasklistCSV(t *testing.T) {
	out := `"bb-api.exe","1234","Console","1","10,240 K"
"notepad.exe","5678","Console","1","8,120 K"
"bb-api.exe","9012","Console","1","11,004 K"
`
	pids := parseTasklistCSV(out, "bb-api.exe")
	want := []int{1234, 9012}
	if len(pids) != len(want) {
		t.Fatalf("got %v want %v", pids, want)
	}
	for i := range want {
		if pids[i] != want[i] {
			t.Fatalf("got %v want %v", pids, want)
		}
	}
}

func TestParseTasklistCSVNoMatch(t *testing.T) {
	out := `"notepad.exe","5678","Console","1","8,120 K"` + "\n"
	if pids := parseTasklistCSV(out, "bb-api.exe"); pids != nil {
		t.Fatalf("expected nil, got %v", pids)
	}
}
