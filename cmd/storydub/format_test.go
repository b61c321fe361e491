package main

import (
	"strings"
	"testing"

	"storydub/internal/api"
)

func TestFormattingHelpers(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{name: "title case", got: titleCase("completed"), want: "Completed"},
		{name: "title case underscores", got: titleCase("in_progress"), want: "In Progress"},
		{name: "short id", got: shortID("0123456789abcdef"), want: "01234567"},
		{name: "short id passthrough", got: shortID("abc"), want: "abc"},
		{name: "truncate", got: truncate("https://example.com/watch?v=abcdef", 12), want: "https://e..."},
		{name: "truncate fits", got: truncate("short", 12), want: "short"},
		{name: "dash", got: dashIfEmpty("  "), want: "-"},
		{name: "bytes", got: humanBytes(1536), want: "1.5 KiB"},
		{name: "stage label", got: stageLabel(api.Job{Stage: "render", StageIndex: 4}), want: "5 render"},
		{name: "no stage", got: stageLabel(api.Job{}), want: "-"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, tc.got, tc.want)
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"Stage", "Entries"}, [][]string{{"tts"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "STAGE") || !strings.Contains(out, "tts") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty table without headers")
	}
}

func TestJobCountRowsSkipsZero(t *testing.T) {
	rows := jobCountRows(map[string]int{"queued": 0, "completed": 3, "failed": 1})
	if len(rows) != 2 || rows[0][0] != "Completed" || rows[1][1] != "1" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestRenderStatusLinePlain(t *testing.T) {
	got := renderStatusLine("Disk", statusWarn, "1.2 GiB free", false)
	want := "  Disk:                    [WARN] 1.2 GiB free"
	if got != want {
		t.Fatalf("renderStatusLine = %q, want %q", got, want)
	}
	if got := renderStatusLine("Lock", statusOK, "", false); !strings.HasSuffix(got, "[OK]") {
		t.Fatalf("expected bare badge, got %q", got)
	}
}
