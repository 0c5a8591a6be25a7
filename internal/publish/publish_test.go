package publish

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpull/dashpull/internal/config"
	"github.com/dashpull/dashpull/internal/http"
	"github.com/dashpull/dashpull/internal/models"
)

type fakeFiles struct {
	name    string
	fail    string
	mu      sync.Mutex
	got     []string
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeFiles) Name() string { return f.name }

func (f *fakeFiles) Upload(ctx context.Context, runID, localPath string) (string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if filepath.Base(localPath) == f.fail {
		return "", errors.New("access denied")
	}
	f.mu.Lock()
	f.got = append(f.got, localPath)
	f.mu.Unlock()
	return f.name + "://" + ObjectKey("", runID, localPath), nil
}

type fakeSummaries struct {
	got []RunSummary
	err error
}

func (f *fakeSummaries) Name() string { return "fake-hook" }

func (f *fakeSummaries) Send(ctx context.Context, s RunSummary) error {
	f.got = append(f.got, s)
	return f.err
}

func files(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = filepath.Join("/dl", string(rune('a'+i))+".xlsx")
	}
	return out
}

func TestPublish_UploadsEverythingWithLimit(t *testing.T) {
	fp := &fakeFiles{name: "mem"}
	hook := &fakeSummaries{}
	p := NewPublisher(nil)
	p.AddFiles(fp)
	p.AddSummaries(hook)
	p.SetConcurrency(2)
	require.True(t, p.Enabled())

	res := p.Publish(context.Background(), files(6), RunSummary{RunID: "run-1"})
	assert.False(t, res.Failed())
	assert.Len(t, res.Uploads, 6)
	assert.LessOrEqual(t, fp.maxSeen.Load(), int32(2))

	require.Len(t, hook.got, 1)
	assert.Equal(t, "run-1", hook.got[0].RunID)
	assert.Len(t, hook.got[0].Uploads, 6)
}

func TestPublish_FailuresAreCollected(t *testing.T) {
	fp := &fakeFiles{name: "mem", fail: "b.xlsx"}
	hook := &fakeSummaries{err: errors.New("hook down")}
	p := NewPublisher(nil)
	p.AddFiles(fp)
	p.AddSummaries(hook)

	res := p.Publish(context.Background(), files(3), RunSummary{RunID: "r"})
	require.Len(t, res.Errors, 2)
	assert.Len(t, res.Uploads, 2)

	sort.Strings(fp.got)
	assert.Equal(t, []string{"/dl/a.xlsx", "/dl/c.xlsx"}, fp.got)
}

func TestPublisher_Disabled(t *testing.T) {
	var p *Publisher
	assert.False(t, p.Enabled())

	p, err := New(context.Background(), config.PublishConfig{}, nil, nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "reports/run-1/TV4.xlsx", ObjectKey("reports", "run-1", "/dl/TV4.xlsx"))
	assert.Equal(t, "run-1/TV4.xlsx", ObjectKey("", "run-1", "/dl/TV4.xlsx"))
}

func TestNewRunSummary(t *testing.T) {
	records := []models.Record{
		models.DownloadRecord("t1", "TV4", "/dl/TV4.xlsx"),
		models.MetricRecord("t2", models.NewMetric("Uber_Paid_Memberships", 0)),
		models.MetricRecord("t2", models.MetricNotFound("Other", "gone")),
	}
	s := NewRunSummary("run-1", time.Unix(0, 0), time.Unix(60, 0), records)
	assert.Equal(t, 1, s.Downloads)
	assert.Equal(t, 1, s.Metrics)
	assert.Equal(t, 1, s.Failures)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	recs := decoded["records"].([]interface{})
	metric := recs[1].(map[string]interface{})
	assert.Equal(t, float64(0), metric["value"], "zero metric values are still sent")
	_, hasValue := recs[2].(map[string]interface{})["value"]
	assert.False(t, hasValue)
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var body RunSummary
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(nethttp.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhookPublisher(srv.URL, srv.Client(), nil)
	hook.SetRetryWait(time.Millisecond, 5*time.Millisecond)
	require.NoError(t, hook.Send(context.Background(), RunSummary{RunID: "run-7", Downloads: 2}))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "run-7", body.RunID)
	assert.Equal(t, 2, body.Downloads)
}

func TestWebhook_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		calls.Add(1)
		w.WriteHeader(nethttp.StatusBadRequest)
	}))
	defer srv.Close()

	hook := NewWebhookPublisher(srv.URL, srv.Client(), nil)
	hook.SetRetryWait(time.Millisecond, 5*time.Millisecond)
	err := hook.Send(context.Background(), RunSummary{RunID: "r"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func writeReport(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "TV4.xlsx")
	require.NoError(t, os.WriteFile(p, []byte("PK-report"), 0644))
	return p
}

func TestAzurePublisher_Upload(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody []byte
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(nethttp.StatusCreated)
	}))
	defer srv.Close()

	p, err := NewAzurePublisher(srv.URL+"/reports?sv=2024-01-01&sig=abc", "/monthly/", srv.Client())
	require.NoError(t, err)

	loc, err := p.Upload(context.Background(), "run-1", writeReport(t))
	require.NoError(t, err)
	assert.Equal(t, "/reports/monthly/run-1/TV4.xlsx", gotPath)
	assert.Contains(t, gotQuery, "sig=abc")
	assert.Equal(t, "PK-report", string(gotBody))
	assert.Equal(t, srv.URL+"/reports/monthly/run-1/TV4.xlsx", loc)
}

func TestBlobLocation(t *testing.T) {
	assert.Equal(t, "https://acct.blob.core.windows.net/reports/monthly/run-1/Fleet Report.xlsx",
		blobLocation("https://acct.blob.core.windows.net/reports/?sv=1&sig=abc", "monthly/run-1/Fleet Report.xlsx"))
	assert.Equal(t, "https://acct.blob.core.windows.net/reports/TV4.xlsx",
		blobLocation("https://acct.blob.core.windows.net/reports", "TV4.xlsx"))
}

func TestNewAzurePublisher_RequiresSAS(t *testing.T) {
	_, err := NewAzurePublisher("https://acct.blob.core.windows.net/reports", "", nil)
	assert.Error(t, err)
	_, err = NewAzurePublisher("not a url", "", nil)
	assert.Error(t, err)
}

func TestS3Publisher_Upload(t *testing.T) {
	t.Setenv("AWS_CA_BUNDLE", "")
	var gotMethod, gotPath string
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(nethttp.StatusOK)
	}))
	defer srv.Close()

	p, err := NewS3Publisher(context.Background(), S3Options{
		Bucket:    "dash-reports",
		Region:    "us-east-1",
		Prefix:    "monthly",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		Endpoint:  srv.URL,
	}, srv.Client())
	require.NoError(t, err)

	loc, err := p.Upload(context.Background(), "run-1", writeReport(t))
	require.NoError(t, err)
	assert.Equal(t, nethttp.MethodPut, gotMethod)
	assert.Equal(t, "/dash-reports/monthly/run-1/TV4.xlsx", gotPath)
	assert.Equal(t, "s3://dash-reports/monthly/run-1/TV4.xlsx", loc)
}

func TestS3Publisher_CABundleThroughProxyClient(t *testing.T) {
	var gotPath string
	srv := httptest.NewTLSServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotPath = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(nethttp.StatusOK)
	}))
	defer srv.Close()

	bundle := filepath.Join(t.TempDir(), "corp-ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, certPEM, 0644))
	t.Setenv("AWS_CA_BUNDLE", bundle)

	client, err := http.NewClient(config.ProxyConfig{Mode: http.ModeNoProxy}, "", nil)
	require.NoError(t, err)

	p, err := NewS3Publisher(context.Background(), S3Options{
		Bucket:    "dash-reports",
		Region:    "us-east-1",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		Endpoint:  srv.URL,
	}, client)
	require.NoError(t, err)

	// The server certificate is only trusted through the bundle.
	_, err = p.Upload(context.Background(), "run-1", writeReport(t))
	require.NoError(t, err)
	assert.Equal(t, "/dash-reports/run-1/TV4.xlsx", gotPath)
}

func TestNewS3Publisher_RequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), S3Options{}, nil)
	assert.Error(t, err)
}
