package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Pirikara/filesentry/internal/filter"
	"github.com/Pirikara/filesentry/internal/monitor"
	"github.com/Pirikara/filesentry/internal/quarantine"
	"github.com/Pirikara/filesentry/internal/record"
	"github.com/Pirikara/filesentry/internal/siem"
	"github.com/Pirikara/filesentry/internal/signature"
)

type loggedEvent struct {
	EventType string                 `json:"event_type"`
	Severity  string                 `json:"severity"`
	Data      map[string]interface{} `json:"data"`
}

func readEvents(t *testing.T, buf *bytes.Buffer) []loggedEvent {
	t.Helper()
	var events []loggedEvent
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var ev loggedEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("unparseable event line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

// buildPipeline assembles a pipeline with real components, an in-memory
// SIEM sink, and no settle delay.
func buildPipeline(t *testing.T, quar *quarantine.Manager, watcher monitor.Watcher) (*Pipeline, *bytes.Buffer) {
	t.Helper()

	deb := filter.NewDebounce(5*time.Second, 1024)
	filt, err := filter.New(filter.Config{MaxFileSizeMB: 100, Debounce: deb}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	buf := &bytes.Buffer{}
	p := New(Config{
		Filter:         filt,
		Matcher:        signature.NewMatcher(signature.Default(), 32),
		Enricher:       record.NewEnricher(record.Config{CalculateHash: true}, zap.NewNop()),
		Quarantine:     quar,
		SIEM:           siem.NewWriter(buf, false),
		Watcher:        watcher,
		Debounce:       deb,
		Logger:         zap.NewNop(),
		Workers:        2,
		SweepInterval:  time.Second,
		MonitoredPaths: []string{"/watched"},
		Adapter:        "static",
	})
	return p, buf
}

func newQuarantineManager(t *testing.T) (*quarantine.Manager, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "quarantine")
	m := quarantine.NewManager(quarantine.Config{Root: root}, zap.NewNop())
	if m.Disabled() {
		t.Fatalf("quarantine manager disabled, root = %s", root)
	}
	return m, root
}

func TestProcessQuarantinesMismatch(t *testing.T) {
	quar, _ := newQuarantineManager(t)
	p, buf := buildPipeline(t, quar, nil)

	evil := filepath.Join(t.TempDir(), "invoice.pdf")
	if err := os.WriteFile(evil, []byte("MZ\x90\x00\x03"), 0644); err != nil {
		t.Fatal(err)
	}

	if got := p.Process(monitor.Event{Kind: monitor.KindClosedWrite, Path: evil}); got != OutcomeQuarantined {
		t.Fatalf("Process() = %s, want %s", got, OutcomeQuarantined)
	}

	if _, err := os.Lstat(evil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("suspicious file still at original path: %v", err)
	}

	events := readEvents(t, buf)
	if len(events) != 2 {
		t.Fatalf("logged %d events, want 2", len(events))
	}

	// The detection must be on record before the response.
	if events[0].EventType != string(siem.EventExtensionMismatch) {
		t.Errorf("first event = %s, want %s", events[0].EventType, siem.EventExtensionMismatch)
	}
	if events[0].Severity != string(siem.SeverityHigh) {
		t.Errorf("mismatch severity = %s, want HIGH", events[0].Severity)
	}
	if got := events[0].Data["actual_type"]; got != "exe" {
		t.Errorf("actual_type = %v, want exe", got)
	}
	if got := events[0].Data["claimed_extension"]; got != "pdf" {
		t.Errorf("claimed_extension = %v, want pdf", got)
	}

	if events[1].EventType != string(siem.EventFileQuarantined) {
		t.Errorf("second event = %s, want %s", events[1].EventType, siem.EventFileQuarantined)
	}
	qpath, _ := events[1].Data["quarantine_path"].(string)
	if qpath == "" {
		t.Fatal("quarantine event missing quarantine_path")
	}
	content, err := os.ReadFile(qpath)
	if err != nil {
		t.Fatalf("quarantined file unreadable: %v", err)
	}
	if string(content) != "MZ\x90\x00\x03" {
		t.Errorf("quarantined content = %q", content)
	}
	if events[1].Data["original_path"] != evil {
		t.Errorf("original_path = %v, want %s", events[1].Data["original_path"], evil)
	}
	if hash, _ := events[1].Data["file_hash"].(string); hash == "" {
		t.Error("quarantine event missing file_hash")
	}

	stats := p.Stats()
	if stats.Inspected != 1 || stats.Mismatches != 1 || stats.Quarantined != 1 || stats.Failures != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestProcessCleanFile(t *testing.T) {
	quar, _ := newQuarantineManager(t)
	p, buf := buildPipeline(t, quar, nil)

	photo := filepath.Join(t.TempDir(), "photo.png")
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}
	if err := os.WriteFile(photo, png, 0644); err != nil {
		t.Fatal(err)
	}

	if got := p.Process(monitor.Event{Kind: monitor.KindClosedWrite, Path: photo}); got != OutcomeClean {
		t.Fatalf("Process() = %s, want %s", got, OutcomeClean)
	}
	if _, err := os.Lstat(photo); err != nil {
		t.Errorf("clean file disturbed: %v", err)
	}
	if events := readEvents(t, buf); len(events) != 0 {
		t.Errorf("clean file produced %d events", len(events))
	}
}

func TestProcessVanishedFileIneligible(t *testing.T) {
	p, buf := buildPipeline(t, nil, nil)

	got := p.Process(monitor.Event{Kind: monitor.KindClosedWrite, Path: filepath.Join(t.TempDir(), "gone.pdf")})
	if got != OutcomeIneligible {
		t.Fatalf("Process() = %s, want %s", got, OutcomeIneligible)
	}
	if events := readEvents(t, buf); len(events) != 0 {
		t.Errorf("vanished file produced %d events", len(events))
	}
}

func TestProcessRecordedOnlyWithoutQuarantine(t *testing.T) {
	p, buf := buildPipeline(t, nil, nil)

	evil := filepath.Join(t.TempDir(), "report.docx")
	if err := os.WriteFile(evil, []byte("MZ\x90\x00"), 0644); err != nil {
		t.Fatal(err)
	}

	if got := p.Process(monitor.Event{Kind: monitor.KindClosedWrite, Path: evil}); got != OutcomeRecordedOnly {
		t.Fatalf("Process() = %s, want %s", got, OutcomeRecordedOnly)
	}
	if _, err := os.Lstat(evil); err != nil {
		t.Errorf("file moved with quarantine off: %v", err)
	}

	events := readEvents(t, buf)
	if len(events) != 1 || events[0].EventType != string(siem.EventExtensionMismatch) {
		t.Fatalf("events = %+v, want a single mismatch", events)
	}
}

func TestProcessRecordedOnlyWithDisabledManager(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "occupied")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	quar := quarantine.NewManager(quarantine.Config{Root: filepath.Join(blocker, "q")}, zap.NewNop())
	if !quar.Disabled() {
		t.Fatal("manager unexpectedly enabled")
	}

	p, buf := buildPipeline(t, quar, nil)

	evil := filepath.Join(dir, "invoice.pdf")
	if err := os.WriteFile(evil, []byte("MZ\x90\x00"), 0644); err != nil {
		t.Fatal(err)
	}

	if got := p.Process(monitor.Event{Kind: monitor.KindClosedWrite, Path: evil}); got != OutcomeRecordedOnly {
		t.Fatalf("Process() = %s, want %s", got, OutcomeRecordedOnly)
	}

	events := readEvents(t, buf)
	if len(events) != 1 || events[0].EventType != string(siem.EventExtensionMismatch) {
		t.Fatalf("events = %+v, want a single mismatch", events)
	}
}

func TestProcessQuarantineFailed(t *testing.T) {
	quar, root := newQuarantineManager(t)
	p, buf := buildPipeline(t, quar, nil)

	// Pull the root out from under the manager after startup.
	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}

	evil := filepath.Join(t.TempDir(), "invoice.pdf")
	if err := os.WriteFile(evil, []byte("MZ\x90\x00"), 0644); err != nil {
		t.Fatal(err)
	}

	if got := p.Process(monitor.Event{Kind: monitor.KindClosedWrite, Path: evil}); got != OutcomeQuarantineFailed {
		t.Fatalf("Process() = %s, want %s", got, OutcomeQuarantineFailed)
	}

	// Detection survives the failed response, and the file stays put.
	if _, err := os.Lstat(evil); err != nil {
		t.Errorf("file lost during failed quarantine: %v", err)
	}

	events := readEvents(t, buf)
	if len(events) != 2 {
		t.Fatalf("logged %d events, want 2", len(events))
	}
	if events[0].EventType != string(siem.EventExtensionMismatch) {
		t.Errorf("first event = %s, want mismatch", events[0].EventType)
	}
	if events[1].EventType != string(siem.EventQuarantineFailed) {
		t.Errorf("second event = %s, want %s", events[1].EventType, siem.EventQuarantineFailed)
	}
	if events[1].Severity != string(siem.SeverityCritical) {
		t.Errorf("failure severity = %s, want CRITICAL", events[1].Severity)
	}
	if msg, _ := events[1].Data["error"].(string); msg == "" {
		t.Error("failure event missing error detail")
	}

	if stats := p.Stats(); stats.Failures != 1 {
		t.Errorf("Failures = %d, want 1", stats.Failures)
	}
}

func TestProcessDebounceSuppressesRepeat(t *testing.T) {
	p, _ := buildPipeline(t, nil, nil)

	path := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(path, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, 0644); err != nil {
		t.Fatal(err)
	}

	if got := p.Process(monitor.Event{Kind: monitor.KindModified, Path: path}); got != OutcomeClean {
		t.Fatalf("first Process() = %s, want clean", got)
	}
	if got := p.Process(monitor.Event{Kind: monitor.KindModified, Path: path}); got != OutcomeIneligible {
		t.Fatalf("second Process() = %s, want ineligible", got)
	}
	if stats := p.Stats(); stats.Inspected != 1 {
		t.Errorf("Inspected = %d, want 1", stats.Inspected)
	}
}

func TestRunDrainsStaticSource(t *testing.T) {
	quar, _ := newQuarantineManager(t)

	dir := t.TempDir()
	var events []monitor.Event
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("MZ\x90\x00"), 0644); err != nil {
			t.Fatal(err)
		}
		events = append(events, monitor.Event{Kind: monitor.KindClosedWrite, Path: path})
	}
	clean := filepath.Join(dir, "ok.png")
	if err := os.WriteFile(clean, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, 0644); err != nil {
		t.Fatal(err)
	}
	events = append(events, monitor.Event{Kind: monitor.KindClosedWrite, Path: clean})

	p, buf := buildPipeline(t, quar, monitor.NewStaticWatcher(events...))

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	logged := readEvents(t, buf)
	if len(logged) < 2 {
		t.Fatalf("logged %d events, want at least start and stop", len(logged))
	}
	if logged[0].EventType != string(siem.EventSystemStart) {
		t.Errorf("first event = %s, want SYSTEM_START", logged[0].EventType)
	}
	if got := logged[0].Data["quarantine_enabled"]; got != true {
		t.Errorf("quarantine_enabled = %v, want true", got)
	}
	last := logged[len(logged)-1]
	if last.EventType != string(siem.EventSystemStop) {
		t.Errorf("last event = %s, want SYSTEM_STOP", last.EventType)
	}
	if got := last.Data["reason"]; got != "source_drained" {
		t.Errorf("stop reason = %v, want source_drained", got)
	}

	// Every event was handled before shutdown: three captures, one clean.
	stats := p.Stats()
	if stats.Inspected != 4 || stats.Mismatches != 3 || stats.Quarantined != 3 {
		t.Errorf("stats = %+v, want 4 inspected, 3 mismatches, 3 quarantined", stats)
	}

	mismatches := 0
	captures := 0
	for _, ev := range logged {
		switch ev.EventType {
		case string(siem.EventExtensionMismatch):
			mismatches++
		case string(siem.EventFileQuarantined):
			captures++
		}
	}
	if mismatches != 3 || captures != 3 {
		t.Errorf("logged %d mismatches and %d captures, want 3 and 3", mismatches, captures)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	watcher := monitor.NewPollWatcher([]string{dir}, 20*time.Millisecond, zap.NewNop())
	p, buf := buildPipeline(t, nil, watcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	logged := readEvents(t, buf)
	if len(logged) != 2 {
		t.Fatalf("logged %d events, want start and stop", len(logged))
	}
	if got := logged[1].Data["reason"]; got != "user_interrupt" {
		t.Errorf("stop reason = %v, want user_interrupt", got)
	}
}
