package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/replay"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

func parseRequest(args []string, stderr io.Writer) (replay.Request, error) {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	account := fs.String("account", "", "account id whose track is replayed")
	service := fs.String("service", "", "service type: advertising|recruiting")
	from := fs.String("from", "", "replay events that occurred at or after this RFC3339 time")
	to := fs.String("to", "", "replay events that occurred at or before this RFC3339 time (default now)")
	dryRun := fs.Bool("dry-run", false, "reconcile in memory without writing")
	if err := fs.Parse(args); err != nil {
		return replay.Request{}, err
	}

	if strings.TrimSpace(*account) == "" {
		return replay.Request{}, fmt.Errorf("missing -account")
	}
	svc, err := enums.ParseServiceType(*service)
	if err != nil {
		return replay.Request{}, err
	}
	req := replay.Request{
		AccountID:   strings.TrimSpace(*account),
		ServiceType: svc,
		DryRun:      *dryRun,
	}
	if req.From, err = parseTime("from", *from); err != nil {
		return replay.Request{}, err
	}
	if req.To, err = parseTime("to", *to); err != nil {
		return replay.Request{}, err
	}
	return req, nil
}

func parseTime(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -%s: %w", name, err)
	}
	return t.UTC(), nil
}
