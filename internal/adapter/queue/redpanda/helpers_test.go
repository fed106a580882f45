package redpanda

import (
	"context"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// fakeGradeProducer records enqueue calls for both the main and DLQ topics.
type fakeGradeProducer struct {
	gradeCalls []domain.GradeTaskPayload
	gradeErr   error

	dlqCalls []dlqCall
	dlqErr   error
}

type dlqCall struct {
	jobID string
	data  []byte
}

func (p *fakeGradeProducer) EnqueueGrade(_ domain.Context, payload domain.GradeTaskPayload) (string, error) {
	if p.gradeErr != nil {
		return "", p.gradeErr
	}
	p.gradeCalls = append(p.gradeCalls, payload)
	return payload.JobID, nil
}

func (p *fakeGradeProducer) EnqueueDLQ(_ context.Context, jobID string, dlqData []byte) error {
	if p.dlqErr != nil {
		return p.dlqErr
	}
	p.dlqCalls = append(p.dlqCalls, dlqCall{jobID: jobID, data: dlqData})
	return nil
}

type statusUpdate struct {
	id     string
	status domain.JobStatus
	msg    *string
}

type fakeJobRepo struct {
	jobs    map[string]domain.Job
	updated []statusUpdate
}

func (r *fakeJobRepo) Create(_ domain.Context, j domain.Job) (string, error) { return j.ID, nil }

func (r *fakeJobRepo) UpdateStatus(_ domain.Context, id string, status domain.JobStatus, msg *string) error {
	r.updated = append(r.updated, statusUpdate{id: id, status: status, msg: msg})
	if r.jobs != nil {
		job := r.jobs[id]
		job.ID = id
		job.Status = status
		r.jobs[id] = job
	}
	return nil
}

func (r *fakeJobRepo) Get(_ domain.Context, id string) (domain.Job, error) {
	if r.jobs != nil {
		if j, ok := r.jobs[id]; ok {
			return j, nil
		}
	}
	return domain.Job{ID: id}, nil
}

func (*fakeJobRepo) FindByIdempotencyKey(domain.Context, string) (domain.Job, error) {
	return domain.Job{}, domain.ErrNotFound
}

func (*fakeJobRepo) ListWithFilters(domain.Context, int, int, string, string) ([]domain.Job, error) {
	return nil, nil
}

func (r *fakeJobRepo) CountByStatus(_ domain.Context, status domain.JobStatus) (int64, error) {
	var n int64
	for _, j := range r.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

type fakeUploadRepo struct {
	uploads map[string]domain.Upload
	err     error
}

func (r *fakeUploadRepo) Create(_ domain.Context, u domain.Upload) (string, error) { return u.ID, nil }

func (r *fakeUploadRepo) Get(_ domain.Context, id string) (domain.Upload, error) {
	if u, ok := r.uploads[id]; ok {
		return u, nil
	}
	return domain.Upload{}, domain.ErrNotFound
}

func (r *fakeUploadRepo) GetMany(_ domain.Context, ids []string) ([]domain.Upload, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]domain.Upload, 0, len(ids))
	for _, id := range ids {
		u, ok := r.uploads[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		out = append(out, u)
	}
	return out, nil
}

type fakeResultRepo struct {
	stored map[string]domain.Result
}

func (r *fakeResultRepo) Upsert(_ domain.Context, res domain.Result) error {
	if r.stored == nil {
		r.stored = make(map[string]domain.Result)
	}
	r.stored[res.JobID] = res
	return nil
}

func (r *fakeResultRepo) GetByJobID(_ domain.Context, jobID string) (domain.Result, error) {
	if res, ok := r.stored[jobID]; ok {
		return res, nil
	}
	return domain.Result{}, domain.ErrNotFound
}

type stubGateway struct {
	reply string
	err   error
}

func (g *stubGateway) Generate(domain.Context, string, string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}
