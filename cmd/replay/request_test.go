package main

import (
	"io"
	"testing"
	"time"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

func TestParseRequest(t *testing.T) {
	req, err := parseRequest([]string{
		"-account", "acct-9",
		"-service", "recruiting",
		"-from", "2026-01-01T00:00:00+09:00",
		"-dry-run",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.AccountID != "acct-9" || req.ServiceType != enums.ServiceTypeRecruiting {
		t.Fatalf("unexpected request %+v", req)
	}
	if !req.DryRun {
		t.Fatalf("expected dry run")
	}
	want := time.Date(2025, 12, 31, 15, 0, 0, 0, time.UTC)
	if !req.From.Equal(want) || req.From.Location() != time.UTC {
		t.Fatalf("from = %v, want %v", req.From, want)
	}
	if !req.To.IsZero() {
		t.Fatalf("to should default to zero, got %v", req.To)
	}
}

func TestParseRequestRejectsBadInput(t *testing.T) {
	cases := map[string][]string{
		"missing account": {"-service", "advertising"},
		"bad service":     {"-account", "a", "-service", "gaming"},
		"bad time":        {"-account", "a", "-service", "advertising", "-to", "yesterday"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseRequest(args, io.Discard); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
