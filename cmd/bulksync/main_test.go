package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"bulksync/internal/config"
	"bulksync/internal/metrics/datadog"
)

// cli runs one invocation with an isolated environment file and quiet logs.
func cli(t *testing.T, ctx context.Context, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	args = append(args, "--env-file", "", "--log-output", "discard")
	code = run(ctx, args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRun_UploadConflictsUpdate_SQLite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db := filepath.Join(dir, "sync.db")
	clubs := writeFile(t, dir, "clubs.csv", "Name,Website,Founded\n"+
		"Ajax,ajax.nl,1900\n"+
		"Feyenoord,feyenoord.nl,1908\n"+
		"PSV,,1913\n")
	store := []string{"--storage", "sqlite", "--dsn", db, "--auto-create-tables"}
	ctx := context.Background()

	code, out, errOut := cli(t, ctx, append([]string{"upload", "organizations", "--file", clubs, "--batch-size", "2"}, store...)...)
	if code != 0 {
		t.Fatalf("upload exit=%d stderr=%s", code, errOut)
	}
	if !strings.Contains(out, "batch 2: 3/3 rows") {
		t.Fatalf("missing progress line:\n%s", out)
	}
	if !strings.Contains(out, "upload organizations completed: processed=3/3 successful=3 skipped=0") {
		t.Fatalf("unexpected summary:\n%s", out)
	}

	conflictsPath := filepath.Join(dir, "conflicts.yaml")
	code, _, errOut = cli(t, ctx, append([]string{"conflicts", "organizations", "--file", clubs, "--out", conflictsPath}, store...)...)
	if code != 0 {
		t.Fatalf("conflicts exit=%d stderr=%s", code, errOut)
	}
	data, err := os.ReadFile(conflictsPath)
	if err != nil {
		t.Fatalf("read conflicts: %v", err)
	}
	if got := strings.Count(string(data), "existing_id:"); got != 3 {
		t.Fatalf("conflicts file lists %d existing rows, want 3:\n%s", got, data)
	}

	code, out, errOut = cli(t, ctx, append([]string{"upload", "organizations", "--file", clubs, "--conflicts", conflictsPath}, store...)...)
	if code != 0 {
		t.Fatalf("second upload exit=%d stderr=%s", code, errOut)
	}
	if !strings.Contains(out, "successful=0 skipped=3") {
		t.Fatalf("second upload should skip every row:\n%s", out)
	}

	update := writeFile(t, dir, "update.csv", "Name,Website\najax,https://ajax.nl\nBenfica,benfica.pt\n")
	code, out, errOut = cli(t, ctx, append([]string{"update", "organizations", "--file", update, "--columns", "website"}, store...)...)
	if code != 0 {
		t.Fatalf("update exit=%d stderr=%s", code, errOut)
	}
	if !strings.Contains(out, "successful=1 skipped=0 not_found=1") || !strings.Contains(out, "not found: Benfica") {
		t.Fatalf("unexpected update summary:\n%s", out)
	}
}

func TestRun_UpdateWithoutColumnsIsInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := writeFile(t, dir, "c.csv", "Name,Team,Email\nAnn,Ajax,ann@ajax.nl\n")
	code, out, errOut := cli(t, context.Background(), "update", "contacts", "--file", file, "--storage", "memory")
	if code != 1 {
		t.Fatalf("exit=%d, want 1", code)
	}
	if out != "" {
		t.Fatalf("nothing should run, got stdout %q", out)
	}
	if !strings.Contains(errOut, "error: update.selected_columns") || !strings.Contains(errOut, "configuration is invalid") {
		t.Fatalf("stderr=%q", errOut)
	}
}

func TestRun_UpdateUnknownColumnIsFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := writeFile(t, dir, "c.csv", "Name,Team\nAnn,Ajax\n")
	code, out, errOut := cli(t, context.Background(), "update", "contacts", "--file", file, "--storage", "memory", "--columns", "Email")
	if code != 1 {
		t.Fatalf("exit=%d, want 1 (stdout=%q)", code, out)
	}
	if !strings.Contains(errOut, "Email") {
		t.Fatalf("stderr=%q, want the missing column named", errOut)
	}
}

func TestRun_CancelledRunExitsZero(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := writeFile(t, dir, "o.csv", "Name\nA\nB\nC\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, out, errOut := cli(t, ctx, "upload", "organizations", "--file", file, "--storage", "memory")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	if !strings.Contains(out, "upload organizations cancelled: processed=0/3") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestRun_Inspect(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := writeFile(t, dir, "c.csv", "name;Email;Notes\nAnn;ann@a.org;x\nann;;y\n")
	code, out, errOut := cli(t, context.Background(), "inspect", "--file", file, "--entity", "contacts")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	for _, want := range []string{"entity=contacts rows=2", "missing required: Team", "repeated names: Ann"} {
		if !strings.Contains(out, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, out)
		}
	}

	code, out, _ = cli(t, context.Background(), "inspect", "--file", file, "--entity", "contacts", "--json")
	if code != 0 || !strings.Contains(out, `"unknown": [`) {
		t.Fatalf("json inspect exit=%d out=%s", code, out)
	}
}

func TestRun_Validate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := writeFile(t, dir, "job.yaml", "storage:\n  kind: memory\nsource:\n  path: staff.csv\nupdate:\n  selected_columns: [Email]\n")

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{"valid_update", []string{"validate", "contacts", "--mode", "update", "--config", cfg}, 0, "configuration is valid", ""},
		{"name_not_updatable", []string{"validate", "contacts", "--mode", "update", "--config", cfg, "--columns", "Name"}, 1, "", "cannot be updated"},
		{"unknown_mode", []string{"validate", "contacts", "--mode", "delete", "--config", cfg}, 1, "", "unknown mode"},
		{"unknown_entity", []string{"validate", "widgets", "--config", cfg}, 1, "", "widgets"},
		{"bad_batch_size", []string{"validate", "organizations", "--config", cfg, "--batch-size", "-5"}, 1, "", "runtime.batch_size"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, out, errOut := cli(t, context.Background(), tc.args...)
			if code != tc.wantCode {
				t.Fatalf("exit=%d, want %d (stderr=%s)", code, tc.wantCode, errOut)
			}
			if !strings.Contains(out, tc.wantOut) || !strings.Contains(errOut, tc.wantErr) {
				t.Fatalf("stdout=%q stderr=%q", out, errOut)
			}
		})
	}
}

func TestReadTable_FormatFromExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "export.html", "<html><table><tr><th>Name</th></tr><tr><td>Ajax</td></tr></table></html>")
	tbl, err := readTable(config.Job{Source: config.Source{Path: path, Format: "auto"}})
	if err != nil {
		t.Fatalf("readTable: %v", err)
	}
	if tbl.Len() != 1 || tbl.Header()[0] != "Name" {
		t.Fatalf("header=%v rows=%d", tbl.Header(), tbl.Len())
	}

	if _, err := readTable(config.Job{Source: config.Source{Path: filepath.Join(dir, "missing.csv")}}); err == nil {
		t.Fatalf("missing file should fail")
	}
}

// fakeMetricsBackend records Close calls.
type fakeMetricsBackend struct {
	closeErr error
	closed   atomic.Int64
}

func (b *fakeMetricsBackend) Close() error {
	b.closed.Add(1)
	return b.closeErr
}

// swapMetricsSeams replaces the package seams for one test. Tests using it
// must not run in parallel.
func swapMetricsSeams(t *testing.T, b metricsBackend, newErr error, set func(any)) *datadog.Options {
	t.Helper()
	oldNew, oldSet := newDatadogBackend, setMetricsBackend
	t.Cleanup(func() { newDatadogBackend, setMetricsBackend = oldNew, oldSet })

	got := &datadog.Options{}
	newDatadogBackend = func(_ context.Context, opts datadog.Options) (metricsBackend, error) {
		*got = opts
		if newErr != nil {
			return nil, newErr
		}
		return b, nil
	}
	setMetricsBackend = set
	return got
}

func TestInitMetrics_None_DoesNotTouchGlobalState(t *testing.T) {
	swapMetricsSeams(t, nil, nil, func(any) {
		t.Fatalf("setMetricsBackend must not be called for none")
	})

	cleanup, err := initMetrics(context.Background(), config.Metrics{Backend: "none"}, "job", zerolog.Nop())
	if err != nil {
		t.Fatalf("initMetrics err=%v, want nil", err)
	}
	if cleanup == nil {
		t.Fatalf("cleanup=nil, want non-nil")
	}
	cleanup()
}

func TestInitMetrics_Datadog_WiresBackendAndCloses(t *testing.T) {
	b := &fakeMetricsBackend{}
	var sets []any
	got := swapMetricsSeams(t, b, nil, func(v any) { sets = append(sets, v) })

	m := config.Metrics{Backend: "datadog", Tags: []string{"team:data"}}
	cleanup, err := initMetrics(context.Background(), m, "clubs", zerolog.Nop())
	if err != nil {
		t.Fatalf("initMetrics err=%v", err)
	}
	if got.JobName != "clubs" || len(got.Tags) != 1 || got.Tags[0] != "team:data" {
		t.Fatalf("datadog options=%+v", *got)
	}
	cleanup()

	if b.closed.Load() != 1 {
		t.Fatalf("closed=%d, want 1", b.closed.Load())
	}
	if len(sets) != 2 || sets[0] != b || sets[1] != nil {
		t.Fatalf("setMetricsBackend calls=%v, want [backend nil]", sets)
	}
}

func TestInitMetrics_Datadog_CloseErrorIsLogged(t *testing.T) {
	b := &fakeMetricsBackend{closeErr: errors.New("flush failed")}
	swapMetricsSeams(t, b, nil, func(any) {})

	var logged bytes.Buffer
	cleanup, err := initMetrics(context.Background(), config.Metrics{Backend: "dd"}, "job", zerolog.New(&logged))
	if err != nil {
		t.Fatalf("initMetrics err=%v", err)
	}
	cleanup()

	if !strings.Contains(logged.String(), "metrics: datadog close error") || !strings.Contains(logged.String(), "flush failed") {
		t.Fatalf("log=%q", logged.String())
	}
}

func TestInitMetrics_Errors(t *testing.T) {
	swapMetricsSeams(t, nil, errors.New("no api key"), func(any) {
		t.Fatalf("backend must not be installed on init failure")
	})

	for _, backend := range []string{"datadog", "statsd"} {
		cleanup, err := initMetrics(context.Background(), config.Metrics{Backend: backend}, "job", zerolog.Nop())
		if err == nil {
			t.Fatalf("%s: err=nil, want error", backend)
		}
		if cleanup == nil {
			t.Fatalf("%s: cleanup=nil", backend)
		}
		cleanup()
	}
}
