package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/mailman-tools/mailman-exporter/internal/db"
)

func TestDefinitionsAreWellFormed(t *testing.T) {
	defs := Definitions()
	if len(defs) == 0 {
		t.Fatal("empty metric catalog")
	}

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			t.Fatal("definition with empty name")
		}
		if seen[def.Name] {
			t.Errorf("%s: duplicate metric name", def.Name)
		}
		seen[def.Name] = true

		if def.Help == "" {
			t.Errorf("%s: missing help text", def.Name)
		}
		if strings.HasPrefix(def.Name, Namespace) {
			t.Errorf("%s: name must not repeat the namespace prefix", def.Name)
		}

		stmt := strings.ToUpper(strings.TrimSpace(def.Query))
		if !strings.HasPrefix(stmt, "SELECT") {
			t.Errorf("%s: query is not a SELECT: %q", def.Name, def.Query)
		}

		if def.Transform != nil && len(def.Labels) == 0 {
			t.Errorf("%s: transform on a label-less metric", def.Name)
		}
	}
}

func TestTransformArity(t *testing.T) {
	for _, def := range Definitions() {
		if def.Transform == nil {
			continue
		}
		row := make(db.Row, 0, len(def.Labels)+1)
		for range def.Labels {
			row = append(row, int64(1))
		}
		row = append(row, int64(1))

		labels := def.Transform(row)
		if len(labels) != len(def.Labels) {
			t.Errorf("%s: transform returned %d label values, want %d",
				def.Name, len(labels), len(def.Labels))
		}
	}
}

func TestRoleName(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{int64(1), "member"},
		{int64(2), "owner"},
		{int64(3), "moderator"},
		{int64(4), "nonmember"},
		{int64(9), "9"},
		{"weird", "weird"},
	}
	for _, tc := range cases {
		if got := roleName(tc.in); got != tc.want {
			t.Errorf("roleName(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRequestTypeName(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{int64(1), "held_message"},
		{int64(2), "subscription"},
		{int64(3), "unsubscription"},
		{int64(0), "0"},
	}
	for _, tc := range cases {
		if got := requestTypeName(tc.in); got != tc.want {
			t.Errorf("requestTypeName(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBoolLabel(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{true, "true"},
		{false, "false"},
		{int64(1), "true"},
		{int64(0), "false"},
		{"other", "other"},
	}
	for _, tc := range cases {
		if got := boolLabel(tc.in); got != tc.want {
			t.Errorf("boolLabel(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLabelValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"lists.example", "lists.example"},
		{[]byte("raw"), "raw"},
		{int64(-3), "-3"},
		{int32(12), "12"},
		{5, "5"},
		{1.5, "1.5"},
		{true, "true"},
		{time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), "2024-05-01T12:00:00Z"},
	}
	for _, tc := range cases {
		if got := LabelValue(tc.in); got != tc.want {
			t.Errorf("LabelValue(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
