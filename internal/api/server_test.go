package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourcewatch/resourcewatch/internal/config"
	"github.com/resourcewatch/resourcewatch/internal/feed"
	iduuid "github.com/resourcewatch/resourcewatch/internal/id/uuid"
	"github.com/resourcewatch/resourcewatch/internal/ingest"
	progressmem "github.com/resourcewatch/resourcewatch/internal/progress/memory"
	"github.com/resourcewatch/resourcewatch/internal/registry"
	registrymem "github.com/resourcewatch/resourcewatch/internal/registry/memory"
	storagemem "github.com/resourcewatch/resourcewatch/internal/storage/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type testEnv struct {
	store  *registrymem.Store
	ring   *feed.Ring
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)

	store := registrymem.NewStore()
	prog := progressmem.NewStore()
	blobs := storagemem.New()
	ring := feed.NewRing(64)
	clk := fixedClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}

	queue := ingest.NewQueue(cfg.Ingest.QueueDepth)
	runner := ingest.NewRunner(store, prog, blobs, clk, nil)
	dispatcher := ingest.NewDispatcher(queue, runner, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := NewServer(store, prog, dispatcher, blobs, ring, nil, iduuid.New(), clk, cfg, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{store: store, ring: ring, server: ts}
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestCreateResource(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/v1/resources", map[string]string{
		"url": "https://example.com/page?a=1&a=2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created resourceResponse
	decodeBody(t, resp, &created)
	assert.Equal(t, "https://example.com/page?a=1&a=2", created.FullURL)
	assert.Equal(t, "com", created.DomainZone)
	require.Len(t, created.Query, 2)
	assert.Equal(t, queryParamDTO{Key: "a", Value: "1"}, created.Query[0])

	// The feed saw the addition.
	events := env.ring.Recent(0)
	require.Len(t, events, 1)
	assert.Equal(t, string(registry.EventResourceAdded), string(events[0].Kind))
}

func TestCreateResourceRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/v1/resources", map[string]string{"url": "not a url"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateResourceDuplicateConflict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	first := postJSON(t, env.server.URL+"/v1/resources", map[string]string{"url": "https://dup.example.com/"})
	first.Body.Close()
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second := postJSON(t, env.server.URL+"/v1/resources", map[string]string{"url": "https://dup.example.com/"})
	defer second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestListResourcesWithFilters(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, u := range []string{"https://a.example.com/", "https://b.example.org/", "https://c.example.org/x"} {
		resp := postJSON(t, env.server.URL+"/v1/resources", map[string]string{"url": u})
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := http.Get(env.server.URL + "/v1/resources?domain_zone=org")
	require.NoError(t, err)
	var listed struct {
		Resources []resourceResponse `json:"resources"`
	}
	decodeBody(t, resp, &listed)
	assert.Len(t, listed.Resources, 2)

	resp, err = http.Get(env.server.URL + "/v1/resources?limit=1")
	require.NoError(t, err)
	decodeBody(t, resp, &listed)
	assert.Len(t, listed.Resources, 1)

	resp, err = http.Get(env.server.URL + "/v1/resources?available=maybe")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteResource(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp := postJSON(t, env.server.URL+"/v1/resources", map[string]string{"url": "https://doomed.example.com/"})
	var created resourceResponse
	decodeBody(t, resp, &created)

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/v1/resources/"+created.UUID, nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	again, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	again.Body.Close()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func zipArchive(t *testing.T, lines []string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("urls.csv")
	require.NoError(t, err)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func uploadArchive(t *testing.T, url string, archive []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("archive", "urls.zip")
	require.NoError(t, err)
	_, err = fw.Write(archive)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func TestIngestionRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	archive := zipArchive(t, []string{
		"https://one.example.com/",
		"bogus line",
		"https://two.example.com/",
	})

	resp := uploadArchive(t, env.server.URL+"/v1/resources", archive)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	decodeBody(t, resp, &accepted)
	require.NotEmpty(t, accepted.JobID)
	assert.Equal(t, string(registry.JobPending), accepted.Status)

	require.Eventually(t, func() bool {
		r, err := http.Get(env.server.URL + "/v1/ingestions/" + accepted.JobID)
		if err != nil {
			return false
		}
		var job ingestionResponse
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			return false
		}
		return job.Status == string(registry.JobSucceeded)
	}, 5*time.Second, 20*time.Millisecond)

	r, err := http.Get(env.server.URL + "/v1/ingestions/" + accepted.JobID)
	require.NoError(t, err)
	var job ingestionResponse
	decodeBody(t, r, &job)
	assert.Equal(t, 3, job.Total)
	assert.Equal(t, 3, job.Processed)
	assert.Equal(t, 1, job.ErrorCount)
	assert.Equal(t, []string{"bogus line"}, job.RejectedURLs)

	list, err := http.Get(env.server.URL + "/v1/resources")
	require.NoError(t, err)
	var listed struct {
		Resources []resourceResponse `json:"resources"`
	}
	decodeBody(t, list, &listed)
	assert.Len(t, listed.Resources, 2)
}

func TestIngestionUnknownJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/v1/ingestions/00000000-0000-7000-8000-000000000000")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScreenshotUploadAndFetch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp := postJSON(t, env.server.URL+"/v1/resources", map[string]string{"url": "https://shot.example.com/"})
	var created resourceResponse
	decodeBody(t, resp, &created)

	image := []byte("\x89PNG\r\n\x1a\nfakeimagebytes")
	put, err := http.Post(env.server.URL+"/v1/resources/"+created.UUID+"/screenshot", "image/png", bytes.NewReader(image))
	require.NoError(t, err)
	put.Body.Close()
	require.Equal(t, http.StatusOK, put.StatusCode)

	get, err := http.Get(env.server.URL + "/v1/resources/" + created.UUID + "/screenshot")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(get.Body)
	require.NoError(t, err)
	assert.Equal(t, image, buf.Bytes())
}

func TestFeedEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		resp := postJSON(t, env.server.URL+"/v1/resources", map[string]string{
			"url": fmt.Sprintf("https://feed%d.example.com/", i),
		})
		resp.Body.Close()
	}

	resp, err := http.Get(env.server.URL + "/v1/feed?limit=2")
	require.NoError(t, err)
	var feedBody struct {
		Events []feedEventResponse `json:"events"`
	}
	decodeBody(t, resp, &feedBody)
	assert.Len(t, feedBody.Events, 2)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(env.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
