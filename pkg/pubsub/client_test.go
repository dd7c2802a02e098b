package pubsub

import (
	"context"
	"testing"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"proj", "billing-ops-alerts", "projects/proj/topics/billing-ops-alerts"},
		{"proj", " projects/other/topics/x ", "projects/other/topics/x"},
		{"", "alerts", ""},
		{"proj", "  ", ""},
	}
	for _, tc := range cases {
		if got := TopicResourceName(tc.project, tc.name); got != tc.want {
			t.Errorf("TopicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestTopicNamesDeduplicates(t *testing.T) {
	names := topicNames(config.PubSubConfig{AlertsTopic: "ops", EventsTopic: " ops "})
	if len(names) != 1 || names[0] != "ops" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestClientOptionsPreferInlineCredentials(t *testing.T) {
	if got := clientOptions(config.GCPConfig{}); len(got) != 0 {
		t.Fatalf("expected no options without credentials, got %d", len(got))
	}
	got := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds.json"})
	if len(got) != 1 {
		t.Fatalf("expected a single credentials option, got %d", len(got))
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{AlertsTopic: "ops"}, nil)
	if err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
}

func TestNilClientHelpers(t *testing.T) {
	var c *Client
	if c.Publisher("ops") != nil {
		t.Fatalf("expected nil publisher")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
}
