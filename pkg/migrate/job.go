package migrate

import (
	"fmt"
	"strings"
)

// Job is one of the batch passes over the target table.
type Job string

const (
	JobManifest Job = "manifest"
	JobConvert  Job = "convert"
	JobFix      Job = "fix"
)

// AllJobs lists the jobs in the order they run.
var AllJobs = []Job{JobManifest, JobConvert, JobFix}

// ParseJobs validates job names and returns them in run order without
// duplicates. An empty list selects every job.
func ParseJobs(names []string) ([]Job, error) {
	if len(names) == 0 {
		return AllJobs, nil
	}

	selected := make(map[Job]bool)
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			job := Job(strings.ToLower(part))
			if !job.valid() {
				return nil, fmt.Errorf("unknown job '%s' (expected one of %s)", part, joinJobs(AllJobs))
			}
			selected[job] = true
		}
	}

	jobs := make([]Job, 0, len(selected))
	for _, job := range AllJobs {
		if selected[job] {
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return AllJobs, nil
	}
	return jobs, nil
}

func (j Job) valid() bool {
	for _, job := range AllJobs {
		if j == job {
			return true
		}
	}
	return false
}

func joinJobs(jobs []Job) string {
	names := make([]string, len(jobs))
	for i, job := range jobs {
		names[i] = string(job)
	}
	return strings.Join(names, ", ")
}
