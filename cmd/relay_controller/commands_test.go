package main

import (
	"errors"
	"testing"

	"memrelay/input"

	"github.com/google/go-cmp/cmp"
)

func TestBuildScript(t *testing.T) {
	script, err := buildScript("100,0 -5,3", 2)
	if err != nil {
		t.Fatal(err)
	}

	var got [][2]int32
	for {
		dx, dy, err := script.Poll()
		if errors.Is(err, input.ErrExhausted) {
			break
		}
		got = append(got, [2]int32{dx, dy})
	}

	want := [][2]int32{{100, 0}, {-5, 3}, {100, 0}, {-5, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("script (-want +got):\n%s", diff)
	}
}

func TestBuildScriptRejects(t *testing.T) {
	for _, moves := range []string{"100", "a,1", "1,99999999999"} {
		if _, err := buildScript(moves, 1); err == nil {
			t.Errorf("buildScript(%q) succeeded", moves)
		}
	}
}

func TestBuildScriptDemo(t *testing.T) {
	script, err := buildScript("", 1)
	if err != nil {
		t.Fatal(err)
	}
	if script.Len() != input.Demo().Len() {
		t.Fatalf("empty moves did not select the demo")
	}
}
