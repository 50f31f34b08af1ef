package adapters

import (
	"reflect"
	"testing"
)

func TestLineBuffer_SplitsAcrossWrites(t *testing.T) {
	var got []string
	lb := newLineBuffer(func(s string) { got = append(got, s) })

	lb.Write([]byte("hel"))
	lb.Write([]byte("lo\nwor"))
	lb.Write([]byte("ld\r\ntrailing"))
	lb.Flush()

	want := []string{"hello", "world", "trailing"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestLineBuffer_FlushEmptyIsNoop(t *testing.T) {
	calls := 0
	lb := newLineBuffer(func(string) { calls++ })
	lb.Write([]byte("a\n"))
	lb.Flush()
	lb.Flush()
	if calls != 1 {
		t.Errorf("emit called %d times, want 1", calls)
	}
}

func TestLineBuffer_StripsTrailingCROnFlush(t *testing.T) {
	var got []string
	lb := newLineBuffer(func(s string) { got = append(got, s) })
	lb.Write([]byte("partial\r"))
	lb.Flush()
	if len(got) != 1 || got[0] != "partial" {
		t.Errorf("lines = %v, want [partial]", got)
	}
}

func TestLooksLikeJSONObject(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{`{"a":1}`, true},
		{`  {"a":1}  `, true},
		{`{}`, true},
		{`plain text`, false},
		{`[1,2]`, false},
		{`{unclosed`, false},
		{``, false},
	}
	for _, tc := range cases {
		if got := looksLikeJSONObject(tc.line); got != tc.want {
			t.Errorf("looksLikeJSONObject(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestTextAccumulator_DropsConsecutiveDuplicates(t *testing.T) {
	var acc textAccumulator
	acc.add("a")
	acc.add("a")
	acc.add("b")
	acc.add("")
	acc.add("a")
	if got := acc.String(); got != "aba" {
		t.Errorf("accumulated %q, want %q", got, "aba")
	}
	if acc.empty() {
		t.Error("accumulator should be non-empty")
	}
}
