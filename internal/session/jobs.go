package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jxucoder/dasa/internal/fileutil"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is one background execution, persisted as a single JSON file so
// any later invocation can inspect it.
type Job struct {
	ID          string     `json:"id"`
	Notebook    string     `json:"notebook"`
	Cells       []int      `json:"cells"`
	PID         int        `json:"pid"`
	Status      JobStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Result holds the runner outcome once the job finishes.
	Result json.RawMessage `json:"result,omitempty"`
}

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool { return j.Status != JobRunning }

// JobManager persists jobs under a directory, one file per job.
type JobManager struct {
	dir string
}

// NewJobManager returns a manager rooted at dir (the project state
// directory); job files live in dir/jobs.
func NewJobManager(dir string) *JobManager {
	return &JobManager{dir: filepath.Join(dir, "jobs")}
}

// Create registers a new running job owned by pid and persists it.
func (m *JobManager) Create(notebookPath string, cells []int, pid int) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Notebook:  notebookPath,
		Cells:     cells,
		PID:       pid,
		Status:    JobRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := m.save(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get loads a job by id, accepting unambiguous id prefixes. Running
// jobs whose process has died are reported as failed.
func (m *JobManager) Get(id string) (*Job, error) {
	jobs, err := m.List()
	if err != nil {
		return nil, err
	}
	var match *Job
	for _, job := range jobs {
		if job.ID == id {
			return job, nil
		}
		if strings.HasPrefix(job.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("job id %q is ambiguous", id)
			}
			match = job
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no job with id %q", id)
	}
	return match, nil
}

// List returns all jobs, newest first, refreshing liveness of running
// ones along the way.
func (m *JobManager) List() ([]*Job, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read jobs dir: %w", err)
	}

	var jobs []*Job
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		job, err := m.load(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}
		if job.Status == JobRunning && !processAlive(job.PID) {
			job.Status = JobFailed
			job.Error = "worker process exited without reporting a result"
			now := time.Now().UTC()
			job.CompletedAt = &now
			_ = m.save(job)
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	return jobs, nil
}

// Update persists the job's current state.
func (m *JobManager) Update(job *Job) error { return m.save(job) }

// Complete marks the job finished and stores the runner outcome.
func (m *JobManager) Complete(job *Job, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	now := time.Now().UTC()
	job.Status = JobCompleted
	job.CompletedAt = &now
	job.Result = data
	return m.save(job)
}

// Fail marks the job finished with an error message.
func (m *JobManager) Fail(job *Job, message string) error {
	now := time.Now().UTC()
	job.Status = JobFailed
	job.CompletedAt = &now
	job.Error = message
	return m.save(job)
}

// Cancel terminates a running job's worker process and records the
// cancellation. Cancelling a finished job is an error.
func (m *JobManager) Cancel(id string) (*Job, error) {
	job, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Finished() {
		return nil, fmt.Errorf("job %s already %s", job.ID, job.Status)
	}

	if processAlive(job.PID) {
		proc, err := os.FindProcess(job.PID)
		if err == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}

	now := time.Now().UTC()
	job.Status = JobCancelled
	job.CompletedAt = &now
	if err := m.save(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (m *JobManager) save(job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	path := filepath.Join(m.dir, job.ID+".json")
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write job %s: %w", job.ID, err)
	}
	return nil
}

func (m *JobManager) load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job file %s: %w", path, err)
	}
	return &job, nil
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
