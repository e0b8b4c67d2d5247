package model

import (
	"reflect"
	"testing"
)

func TestMergeSplitRoundTrip(t *testing.T) {
	cases := [][]string{
		{"google-123", "primary"},
		{"google-123", "cal@example.com", "event-9"},
		{"trello-9", "kin_my_cards"},
		{"outlook-1", "AAMkAGI2TG93AAA="},
	}
	for _, parts := range cases {
		merged := MergeIDs(parts...)
		if got := SplitMergedID(merged); !reflect.DeepEqual(got, parts) {
			t.Errorf("SplitMergedID(MergeIDs(%v)) = %v", parts, got)
		}
	}
}

func TestSplitSourceID(t *testing.T) {
	tests := []struct {
		id       string
		provider string
		account  string
		ok       bool
	}{
		{"google-123", "google", "123", true},
		// Account ids may contain dashes; only the first one splits.
		{"google-123-456", "google", "123-456", true},
		{"facebook-a-b-c", "facebook", "a-b-c", true},
		{"google", "", "", false},
		{"-123", "", "", false},
		{"google-", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		provider, account, ok := SplitSourceID(tt.id)
		if provider != tt.provider || account != tt.account || ok != tt.ok {
			t.Errorf("SplitSourceID(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.id, provider, account, ok, tt.provider, tt.account, tt.ok)
		}
	}
}

func TestSourceIDRoundTrip(t *testing.T) {
	id := SourceID("google", "123-456")
	if id != "google-123-456" {
		t.Fatalf("SourceID = %q", id)
	}
	provider, account, ok := SplitSourceID(id)
	if !ok || provider != "google" || account != "123-456" {
		t.Errorf("SplitSourceID(%q) = (%q, %q, %v)", id, provider, account, ok)
	}
}
