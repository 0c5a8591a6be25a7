package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpull/dashpull/internal/browser"
	"github.com/dashpull/dashpull/internal/config"
	"github.com/dashpull/dashpull/internal/events"
	"github.com/dashpull/dashpull/internal/logging"
	"github.com/dashpull/dashpull/internal/models"
	"github.com/dashpull/dashpull/internal/publish"
	"github.com/dashpull/dashpull/internal/tasks"
)

const testCatalog = `
base_url: https://dash.test
tasks:
  - id: "1"
    name: Orders - Download
    kind: download
    reports:
      - {label: Orders, url: /question/1}
  - id: "2"
    name: Fleet - Row Count
    kind: rowcount
    url: /question/2
    label: Fleet_Rows
  - id: "3"
    name: Broken - Scrape
    kind: scrape
    url: /dashboard/3
    metrics:
      - {label: Broken_Value, card: Value}
`

type fakeVPN struct {
	connected, disconnected int
	err                     error
}

func (v *fakeVPN) Connect(ctx context.Context, wait time.Duration) error {
	v.connected++
	return v.err
}

func (v *fakeVPN) Disconnect() error {
	v.disconnected++
	return nil
}

// scriptedSession exports "<last path segment>.xlsx" into dir and answers
// row-count lookups. Navigation to /dashboard/ fails.
type scriptedSession struct {
	mu      sync.Mutex
	dir     string
	current string
	closed  bool
}

func (s *scriptedSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.Contains(url, "/dashboard/") {
		return errors.New("navigation failed")
	}
	s.current = url
	return nil
}

func (s *scriptedSession) Click(ctx context.Context, sel browser.Selector, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(sel.Expr, "submit"):
		s.current = "https://dash.test/"
	case strings.Contains(sel.Expr, "Icon-xlsx"):
		name := filepath.Base(s.current) + " export.xlsx"
		return os.WriteFile(filepath.Join(s.dir, name), []byte("x"), 0644)
	}
	return nil
}

func (s *scriptedSession) Input(ctx context.Context, sel browser.Selector, text string, timeout time.Duration) error {
	return nil
}

func (s *scriptedSession) WaitVisible(ctx context.Context, sel browser.Selector, timeout time.Duration) error {
	return nil
}

func (s *scriptedSession) Text(ctx context.Context, sel browser.Selector, timeout time.Duration) (string, error) {
	return "Showing 42 rows", nil
}

func (s *scriptedSession) URL() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *scriptedSession) WaitURLChange(ctx context.Context, from string, timeout time.Duration) error {
	return nil
}

func (s *scriptedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Session.Username = "ops@example.com"
	cfg.Session.Password = "secret"
	cfg.Download.Dir = t.TempDir()
	cfg.Download.StartPollInterval = 10 * time.Millisecond
	cfg.Download.PollInterval = 20 * time.Millisecond
	cfg.Download.StartTimeout = 200 * time.Millisecond
	cfg.Download.Watch = false
	cfg.Download.MinFreeMB = 1
	cfg.VPN.ConnectWait = 0
	cfg.Notifications.Enabled = false
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, bus *events.EventBus) (*Runner, *fakeVPN, *scriptedSession, *bytes.Buffer) {
	t.Helper()
	cat, err := tasks.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	r := New(cfg, cat, logging.NewNopLogger(), bus)
	v := &fakeVPN{}
	r.SetVPN(v)
	session := &scriptedSession{dir: cfg.Download.Dir}
	r.SetLauncher(func(ctx context.Context, bc browser.Config, logger *logging.Logger) (browser.Session, error) {
		return session, nil
	})
	r.SetTimeouts(tasks.Timeouts{
		Single:        time.Second,
		Batch:         time.Second,
		ExportButton:  50 * time.Millisecond,
		ExportOption:  50 * time.Millisecond,
		Metric:        50 * time.Millisecond,
		SiblingMetric: 10 * time.Millisecond,
	})
	var out bytes.Buffer
	r.SetOutput(&out)
	return r, v, session, &out
}

func TestRun_AllTasks(t *testing.T) {
	bus := events.NewEventBus(50)
	defer bus.Close()
	done := bus.Subscribe(events.EventRunComplete)
	failed := bus.Subscribe(events.EventTaskFailed)

	cfg := testConfig(t)
	r, v, session, out := newTestRunner(t, cfg, bus)
	r.SetLauncher(func(ctx context.Context, bc browser.Config, logger *logging.Logger) (browser.Session, error) {
		assert.Equal(t, cfg.Download.Dir, bc.DownloadDir)
		return session, nil
	})

	report, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Records, 3)

	orders := report.Records[0]
	assert.Equal(t, models.StatusOK, orders.Status)
	assert.Equal(t, filepath.Join(cfg.Download.Dir, "Orders.xlsx"), orders.Path)
	assert.FileExists(t, orders.Path)

	assert.Equal(t, int64(42), report.Records[1].Value)
	assert.Equal(t, models.StatusFailed, report.Records[2].Status)
	assert.Equal(t, "Broken - Scrape", report.Records[2].Task)

	assert.Equal(t, 1, report.Counts.Downloads)
	assert.Equal(t, 1, report.Counts.Metrics)
	assert.Equal(t, 1, report.Counts.Failures)

	assert.Equal(t, cfg.SummaryPath(), report.SummaryPath)
	assert.FileExists(t, report.SummaryPath)
	assert.Contains(t, out.String(), "--- Executing: Orders - Download ---")
	assert.Contains(t, out.String(), "Summary saved to:")

	assert.Equal(t, 1, v.connected)
	assert.Equal(t, 1, v.disconnected)
	assert.True(t, session.closed)

	ev := (<-done).(*events.RunCompleteEvent)
	assert.Equal(t, report.RunID, ev.RunID)
	assert.Equal(t, 1, ev.Failures)
	tf := (<-failed).(*events.TaskFailedEvent)
	assert.Equal(t, "Broken - Scrape", tf.Task)
}

func TestRun_ScrapeOnlyDoesNotEnableDownloads(t *testing.T) {
	cfg := testConfig(t)
	r, _, _, _ := newTestRunner(t, cfg, nil)
	r.SetLauncher(func(ctx context.Context, bc browser.Config, logger *logging.Logger) (browser.Session, error) {
		assert.Empty(t, bc.DownloadDir)
		return &scriptedSession{}, nil
	})

	report, err := r.Run(context.Background(), []string{"2"})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "Fleet_Rows", report.Records[0].Name)
}

func TestRun_UnknownTask(t *testing.T) {
	r, v, _, _ := newTestRunner(t, testConfig(t), nil)
	_, err := r.Run(context.Background(), []string{"9"})
	assert.ErrorIs(t, err, tasks.ErrUnknownTask)
	assert.Zero(t, v.connected)
}

func TestRun_LoginFailureStillCleansUp(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Password = ""
	r, v, session, _ := newTestRunner(t, cfg, nil)

	_, err := r.Run(context.Background(), []string{"2"})
	assert.ErrorIs(t, err, tasks.ErrMissingCredentials)
	assert.True(t, session.closed)
	assert.Equal(t, 1, v.disconnected)
}

func TestRun_VPNFailureIsNotFatal(t *testing.T) {
	r, v, _, _ := newTestRunner(t, testConfig(t), nil)
	v.err = errors.New("client not installed")
	_, err := r.Run(context.Background(), []string{"2"})
	assert.NoError(t, err)
}

func TestRun_BrowserLaunchFailure(t *testing.T) {
	r, v, _, _ := newTestRunner(t, testConfig(t), nil)
	r.SetLauncher(func(ctx context.Context, bc browser.Config, logger *logging.Logger) (browser.Session, error) {
		return nil, errors.New("chrome not found")
	})
	_, err := r.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "chrome not found")
	assert.Equal(t, 1, v.disconnected)
}

func TestRun_InsufficientDiskSpace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Download.MinFreeMB = 1 << 40
	r, _, _, _ := newTestRunner(t, cfg, nil)
	_, err := r.Run(context.Background(), []string{"1"})
	assert.Error(t, err)
}

type hookRecorder struct {
	got []publish.RunSummary
}

func (h *hookRecorder) Name() string { return "hook" }

func (h *hookRecorder) Send(ctx context.Context, s publish.RunSummary) error {
	h.got = append(h.got, s)
	return nil
}

func TestRun_Publishes(t *testing.T) {
	cfg := testConfig(t)
	r, _, _, _ := newTestRunner(t, cfg, nil)
	hook := &hookRecorder{}
	p := publish.NewPublisher(nil)
	p.AddSummaries(hook)
	r.SetPublisher(p)

	report, err := r.Run(context.Background(), []string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, hook.got, 1)
	assert.Equal(t, report.RunID, hook.got[0].RunID)
	assert.Equal(t, 1, hook.got[0].Downloads)
	assert.Equal(t, 1, hook.got[0].Metrics)
}

func TestResolve(t *testing.T) {
	cfg := testConfig(t)
	r, _, _, out := newTestRunner(t, cfg, nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(cfg.Download.Dir, "export (3).xlsx"), []byte("x"), 0644)
	}()

	report, err := r.Resolve(context.Background(), []string{"Manual_Report", "Never"}, 400*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, report.Records, 2)
	assert.Equal(t, filepath.Join(cfg.Download.Dir, "Manual_Report.xlsx"), report.Records[0].Path)
	assert.Equal(t, models.StatusTimeout, report.Records[1].Status)
	assert.Contains(t, out.String(), "Manual_Report")

	_, err = r.Resolve(context.Background(), nil, time.Second)
	assert.ErrorIs(t, err, ErrNoLabels)
}
