//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// baseURL points the suite at a running deployment.
var baseURL = getenv("E2E_BASE_URL", "http://localhost:8080/v1")

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// requireApp skips the test when the deployment is not reachable.
func requireApp(t *testing.T, client *http.Client) {
	t.Helper()
	healthz := strings.TrimSuffix(baseURL, "/v1") + "/healthz"
	resp, err := client.Get(healthz)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			_ = resp.Body.Close()
		}
		t.Skip("app not available; skipping E2E test")
	}
	_ = resp.Body.Close()
}

// uploadFiles posts the given name->content files as one multipart request
// and returns the upload ids.
func uploadFiles(t *testing.T, client *http.Client, files map[string]string) []string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, baseURL+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.IDs, len(files))
	return out.IDs
}

// enqueueGrade submits a grading request and returns the decoded response.
func enqueueGrade(t *testing.T, client *http.Client, description string, fileIDs []string, idemKey string) map[string]any {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"description": description,
		"file_ids":    fileIDs,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/grade", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// getResult fetches the job result and returns status code plus body.
func getResult(t *testing.T, client *http.Client, jobID string) (int, map[string]any) {
	t.Helper()
	resp, err := client.Get(baseURL + "/result/" + jobID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// waitForTerminal polls the result endpoint until the job completes or fails.
func waitForTerminal(t *testing.T, client *http.Client, jobID string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		status, body := getResult(t, client, jobID)
		require.Equal(t, http.StatusOK, status)
		if st, _ := body["status"].(string); st == "completed" || st == "failed" {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s not terminal after %v: %#v", jobID, timeout, body)
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}

// dumpJSON writes the payload to E2E_ARTIFACTS_DIR for post-run inspection.
// It is a no-op when the variable is unset.
func dumpJSON(t *testing.T, name string, v any) {
	t.Helper()
	dir := os.Getenv("E2E_ARTIFACTS_DIR")
	if dir == "" {
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(dir, 0o755)
	_ = os.WriteFile(filepath.Join(dir, name), b, 0o600)
}
