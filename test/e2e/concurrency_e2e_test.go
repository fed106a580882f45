//go:build e2e

package e2e_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

// TestE2E_ConcurrentGradeJobs enqueues several jobs back to back and expects
// each to reach a terminal state with a distinct id.
func TestE2E_ConcurrentGradeJobs(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping E2E tests in short mode")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	requireApp(t, client)

	const jobs = 3
	jobIDs := make([]string, 0, jobs)
	for i := 0; i < jobs; i++ {
		ids := uploadFiles(t, client, map[string]string{
			fmt.Sprintf("task_%d.py", i): fmt.Sprintf("def task_%d():\n    return %d\n", i, i),
		})
		grade := enqueueGrade(t, client, fmt.Sprintf("Grade concurrent submission %d.", i), ids, "")
		id, _ := grade["id"].(string)
		if id == "" {
			t.Fatalf("job %d: missing id in %#v", i, grade)
		}
		jobIDs = append(jobIDs, id)
	}

	seen := map[string]bool{}
	for _, id := range jobIDs {
		if seen[id] {
			t.Fatalf("duplicate job id %s", id)
		}
		seen[id] = true
		final := waitForTerminal(t, client, id, 120*time.Second)
		if st, _ := final["status"].(string); st != "completed" && st != "failed" {
			t.Fatalf("job %s: unexpected terminal status %q", id, st)
		}
	}
}
