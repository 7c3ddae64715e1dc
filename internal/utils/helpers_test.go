package utils

import "testing"

func TestParseBool(t *testing.T) {
	truthy := []string{"1", "true", "TRUE", " yes ", "y", "On"}
	for _, v := range truthy {
		got, err := ParseBool(v)
		if err != nil || !got {
			t.Errorf("ParseBool(%q) = %v, %v, want true", v, got, err)
		}
	}
	falsy := []string{"", "0", "false", "no", "N", " off"}
	for _, v := range falsy {
		got, err := ParseBool(v)
		if err != nil || got {
			t.Errorf("ParseBool(%q) = %v, %v, want false", v, got, err)
		}
	}
	for _, v := range []string{"maybe", "ture", "2"} {
		if _, err := ParseBool(v); err == nil {
			t.Errorf("ParseBool(%q) accepted an unknown value", v)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" kworker*, ,pulse-* ,")
	if len(got) != 2 || got[0] != "kworker*" || got[1] != "pulse-*" {
		t.Fatalf("unexpected split: %#v", got)
	}
	if SplitList("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := map[string]string{
		"v1.2.3":  "1.2.3",
		" 1.2.3 ": "1.2.3",
		"dev":     "dev",
	}
	for in, want := range tests {
		if got := NormalizeVersion(in); got != want {
			t.Errorf("NormalizeVersion(%q) = %q, want %q", in, got, want)
		}
	}
}
