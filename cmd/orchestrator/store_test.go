package main

import "testing"

func TestIsMongoURI(t *testing.T) {
	cases := map[string]bool{
		"mongodb://localhost/db":    true,
		"mongodb+srv://cluster0/db": true,
		"":                          false,
		"/path/to/local.db":         false,
		"postgres://localhost/db":   false,
	}
	for uri, want := range cases {
		if got := isMongoURI(uri); got != want {
			t.Errorf("isMongoURI(%q) = %v, want %v", uri, got, want)
		}
	}
}

func TestDatabaseNameFromURI(t *testing.T) {
	cases := map[string]string{
		"mongodb://localhost/orchestrator":           "orchestrator",
		"mongodb://localhost/orchestrator?ssl=true":  "orchestrator",
		"mongodb://localhost":                        "orchestrator",
		"mongodb://localhost/":                       "orchestrator",
	}
	for uri, want := range cases {
		if got := databaseNameFromURI(uri); got != want {
			t.Errorf("databaseNameFromURI(%q) = %q, want %q", uri, got, want)
		}
	}
}
