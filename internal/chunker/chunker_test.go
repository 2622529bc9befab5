package chunker

import (
	"strings"
	"testing"
)

func TestSliceLines(t *testing.T) {
	lines := strings.SplitAfter("one\ntwo\nthree", "\n")
	if got := sliceLines(lines, 2, 3); got != "two\nthree" {
		t.Fatalf("sliceLines = %q", got)
	}
	if got := sliceLines(lines, 3, 9); got != "three" {
		t.Fatalf("sliceLines past end = %q", got)
	}
	if got := sliceLines(lines, 5, 6); got != "" {
		t.Fatalf("sliceLines out of range = %q", got)
	}
}

func TestDedupKeepsOutermost(t *testing.T) {
	caps := []capture{
		{name: "inner", startByte: 10, endByte: 20},
		{name: "outer", startByte: 0, endByte: 50},
		{name: "next", startByte: 60, endByte: 70},
	}
	got := dedup(caps)
	if len(got) != 2 || got[0].name != "outer" || got[1].name != "next" {
		t.Fatalf("dedup = %+v", got)
	}
}

func TestCollapseSpace(t *testing.T) {
	if got := collapseSpace("int\n  f(int a,\n\tint b) "); got != "int f(int a, int b)" {
		t.Fatalf("collapseSpace = %q", got)
	}
}

func TestRegistryExtensions(t *testing.T) {
	r := NewRegistry()
	r.Register("c", &LanguageSpec{Extensions: []string{"h", ".c"}})
	got := r.Extensions()
	if strings.Join(got, ",") != ".c,.h" {
		t.Fatalf("extensions = %v", got)
	}
	if spec, lang := r.Lookup("dir/x.h"); spec == nil || lang != "c" {
		t.Fatalf("lookup = %v %q", spec, lang)
	}
}
