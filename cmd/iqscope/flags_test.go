package main

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestQuantitySet(t *testing.T) {
	cases := map[string]float64{
		"48000": 48000,
		"48k":   48000,
		"2.4M":  2.4e6,
		"1G":    1e9,
		" 512 ": 512,
	}
	for in, want := range cases {
		var q quantity
		if err := q.Set(in); err != nil {
			t.Errorf("Set(%q): %v", in, err)
			continue
		}
		if float64(q) != want {
			t.Errorf("Set(%q) = %v, want %v", in, float64(q), want)
		}
	}

	for _, in := range []string{"", "k", "fast", "-3k"} {
		var q quantity
		if err := q.Set(in); err == nil {
			t.Errorf("Set(%q) succeeded", in)
		}
	}
}

func TestQuantityFlag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var q quantity
	fs.Var(&q, "rate", "sample rate")
	if err := fs.Parse([]string{"--rate", "2.4M"}); err != nil {
		t.Fatal(err)
	}
	if !fs.Changed("rate") || float64(q) != 2.4e6 {
		t.Fatalf("rate = %v changed=%v", float64(q), fs.Changed("rate"))
	}
	if got := fs.Lookup("rate").Value.Type(); got != "quantity" {
		t.Errorf("Type = %q", got)
	}
}
