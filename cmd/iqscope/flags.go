package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// quantity is a flag value with an optional SI suffix: 48k, 2.4M, 1G.
type quantity float64

var _ pflag.Value = (*quantity)(nil)

var suffixes = map[byte]float64{'k': 1e3, 'K': 1e3, 'M': 1e6, 'G': 1e9}

func (q *quantity) String() string {
	return strconv.FormatFloat(float64(*q), 'g', -1, 64)
}

func (q *quantity) Set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("empty quantity")
	}
	mul := 1.0
	if m, ok := suffixes[s[len(s)-1]]; ok {
		mul = m
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q", s)
	}
	if v < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	*q = quantity(v * mul)
	return nil
}

func (q *quantity) Type() string { return "quantity" }
