package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// EnqueueProfileJob stores one import as a queued background unit of work.
func (p *Pool) EnqueueProfileJob(ctx context.Context, ownerKey, schemaTag string, payload []byte) (ProfileJob, error) {
	const query = `
INSERT INTO profile_jobs (owner_key, schema_tag, payload, status, created_at)
VALUES ($1, $2, $3, $4, now())
RETURNING job_id, job_uuid, created_at`

	job := ProfileJob{
		OwnerKey:  ownerKey,
		SchemaTag: schemaTag,
		Payload:   payload,
		Status:    JobStatusQueued,
	}
	err := p.QueryRow(ctx, query, ownerKey, schemaTag, payload, JobStatusQueued).Scan(&job.JobID, &job.JobUUID, &job.CreatedAt)
	if err != nil {
		return ProfileJob{}, fmt.Errorf("enqueue profile job: %w", err)
	}
	return job, nil
}

// ClaimNextProfileJob moves the oldest queued job to running. SKIP LOCKED
// keeps concurrent workers off the same row. Returns ErrNoRows when the
// queue is empty.
func (p *Pool) ClaimNextProfileJob(ctx context.Context) (ProfileJob, error) {
	const query = `
UPDATE profile_jobs SET status = $1, started_at = now()
WHERE job_id = (
	SELECT job_id FROM profile_jobs
	WHERE status = $2
	ORDER BY created_at
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING job_id, job_uuid, owner_key, schema_tag, payload, status, rows_skipped, started_at, created_at`

	var job ProfileJob
	err := p.QueryRow(ctx, query, JobStatusRunning, JobStatusQueued).Scan(
		&job.JobID,
		&job.JobUUID,
		&job.OwnerKey,
		&job.SchemaTag,
		&job.Payload,
		&job.Status,
		&job.RowsSkipped,
		&job.StartedAt,
		&job.CreatedAt,
	)
	if err != nil {
		return ProfileJob{}, err
	}
	return job, nil
}

func (p *Pool) MarkProfileJobDone(ctx context.Context, jobID int64, rowsSkipped int) error {
	const query = `
UPDATE profile_jobs SET status = $2, rows_skipped = $3, finished_at = now()
WHERE job_id = $1`
	if _, err := p.Exec(ctx, query, jobID, JobStatusDone, rowsSkipped); err != nil {
		return fmt.Errorf("mark job %d done: %w", jobID, err)
	}
	return nil
}

func (p *Pool) MarkProfileJobFailed(ctx context.Context, jobID int64, cause error) error {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	if len(message) > 4000 {
		message = message[:4000]
	}

	const query = `
UPDATE profile_jobs SET status = $2, error_text = $3, finished_at = now()
WHERE job_id = $1`
	if _, err := p.Exec(ctx, query, jobID, JobStatusFailed, message); err != nil {
		return fmt.Errorf("mark job %d failed: %w", jobID, err)
	}
	return nil
}

// GetProfileJobByUUID returns a job without its payload bytes.
func (p *Pool) GetProfileJobByUUID(ctx context.Context, jobUUID string) (ProfileJob, error) {
	const query = `
SELECT job_id, job_uuid, owner_key, schema_tag, status, error_text, rows_skipped, started_at, finished_at, created_at
FROM profile_jobs WHERE job_uuid = $1`

	var job ProfileJob
	err := p.QueryRow(ctx, query, strings.TrimSpace(jobUUID)).Scan(
		&job.JobID,
		&job.JobUUID,
		&job.OwnerKey,
		&job.SchemaTag,
		&job.Status,
		&job.ErrorText,
		&job.RowsSkipped,
		&job.StartedAt,
		&job.FinishedAt,
		&job.CreatedAt,
	)
	if err != nil {
		return ProfileJob{}, err
	}
	return job, nil
}

// UpsertProfile replaces an owner's profile wholesale. Partial patches never
// happen: a profile is either the previous complete run or this one.
func (p *Pool) UpsertProfile(ctx context.Context, ownerKey, fingerprint string, payload json.RawMessage, expiresAt *time.Time) error {
	const query = `
INSERT INTO profiles (owner_key, fingerprint, payload, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())
ON CONFLICT (owner_key) DO UPDATE SET
	fingerprint = EXCLUDED.fingerprint,
	payload = EXCLUDED.payload,
	expires_at = EXCLUDED.expires_at,
	updated_at = now()`

	if _, err := p.Exec(ctx, query, ownerKey, fingerprint, payload, expiresAt); err != nil {
		return fmt.Errorf("upsert profile for %s: %w", ownerKey, err)
	}
	return nil
}

func (p *Pool) GetProfileByOwner(ctx context.Context, ownerKey string) (Profile, error) {
	const query = `
SELECT profile_id, owner_key, fingerprint, payload, expires_at, created_at, updated_at
FROM profiles
WHERE owner_key = $1 AND (expires_at IS NULL OR expires_at > now())`

	var profile Profile
	err := p.QueryRow(ctx, query, ownerKey).Scan(
		&profile.ProfileID,
		&profile.OwnerKey,
		&profile.Fingerprint,
		&profile.Payload,
		&profile.ExpiresAt,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// SweepExpiredProfiles deletes anonymous profiles past their expiry.
func (p *Pool) SweepExpiredProfiles(ctx context.Context) (int64, error) {
	const query = `DELETE FROM profiles WHERE expires_at IS NOT NULL AND expires_at <= now()`

	tag, err := p.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("sweep expired profiles: %w", err)
	}
	return tag.RowsAffected(), nil
}
