package profile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/catalog"
	"github.com/vanajmoorthy/bibliotype/internal/community"
	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/dna"
	"github.com/vanajmoorthy/bibliotype/internal/importer"
)

const goodreadsExport = `Title,Author,My Rating,Average Rating,Number of Pages,Original Publication Year,Date Read,Exclusive Shelf,My Review
The Catcher in the Rye,J.D. Salinger,5,4.01,277,1951,2024/01/15,read,A wonderful and moving book that I truly loved reading.
The Catcher in the Rye,J. D. Salinger,5,4.01,277,1951,2024/01/15,read,
Piranesi,Susanna Clarke,4,4.25,245,2020,2023/08/02,read,
`

type fakeStore struct {
	jobs     map[string]db.ProfileJob
	profiles map[string]db.Profile
	facts    map[int64]db.BookFact

	doneJobID   int64
	doneSkipped int
	failedJobID int64
	failedCause error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:     make(map[string]db.ProfileJob),
		profiles: make(map[string]db.Profile),
		facts:    make(map[int64]db.BookFact),
	}
}

func (f *fakeStore) EnqueueProfileJob(ctx context.Context, ownerKey, schemaTag string, payload []byte) (db.ProfileJob, error) {
	job := db.ProfileJob{
		JobID:     int64(len(f.jobs) + 1),
		JobUUID:   "job-" + ownerKey,
		OwnerKey:  ownerKey,
		SchemaTag: schemaTag,
		Payload:   payload,
		Status:    db.JobStatusQueued,
	}
	f.jobs[job.JobUUID] = job
	return job, nil
}

func (f *fakeStore) ClaimNextProfileJob(ctx context.Context) (db.ProfileJob, error) {
	for uuid, job := range f.jobs {
		if job.Status == db.JobStatusQueued {
			job.Status = db.JobStatusRunning
			f.jobs[uuid] = job
			return job, nil
		}
	}
	return db.ProfileJob{}, db.ErrNoRows
}

func (f *fakeStore) MarkProfileJobDone(ctx context.Context, jobID int64, rowsSkipped int) error {
	f.doneJobID = jobID
	f.doneSkipped = rowsSkipped
	return nil
}

func (f *fakeStore) MarkProfileJobFailed(ctx context.Context, jobID int64, cause error) error {
	f.failedJobID = jobID
	f.failedCause = cause
	return nil
}

func (f *fakeStore) GetProfileJobByUUID(ctx context.Context, jobUUID string) (db.ProfileJob, error) {
	job, ok := f.jobs[jobUUID]
	if !ok {
		return db.ProfileJob{}, db.ErrNoRows
	}
	return job, nil
}

func (f *fakeStore) UpsertProfile(ctx context.Context, ownerKey, fingerprint string, payload json.RawMessage, expiresAt *time.Time) error {
	f.profiles[ownerKey] = db.Profile{
		OwnerKey:    ownerKey,
		Fingerprint: fingerprint,
		Payload:     payload,
		ExpiresAt:   expiresAt,
	}
	return nil
}

func (f *fakeStore) GetProfileByOwner(ctx context.Context, ownerKey string) (db.Profile, error) {
	profile, ok := f.profiles[ownerKey]
	if !ok {
		return db.Profile{}, db.ErrNoRows
	}
	return profile, nil
}

func (f *fakeStore) SweepExpiredProfiles(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeStore) ListBookFacts(ctx context.Context, bookIDs []int64) ([]db.BookFact, error) {
	facts := make([]db.BookFact, 0, len(bookIDs))
	for _, id := range bookIDs {
		if fact, ok := f.facts[id]; ok {
			facts = append(facts, fact)
		}
	}
	return facts, nil
}

// fakeResolver assigns stable IDs per normalized identity, mirroring the
// catalog's convergence behavior, and seeds matching facts in the store.
type fakeResolver struct {
	store   *fakeStore
	byKey   map[string]int64
	authors map[string]int64
}

func newFakeResolver(store *fakeStore) *fakeResolver {
	return &fakeResolver{store: store, byKey: make(map[string]int64), authors: make(map[string]int64)}
}

func (r *fakeResolver) Resolve(ctx context.Context, ev *importer.ReadEvent) (*catalog.Resolution, error) {
	authorKey := importer.NormalizeName(ev.Author)
	titleKey := importer.NormalizeTitle(ev.Title)
	if authorKey == "" || titleKey == "" {
		return nil, errors.New("empty identity key")
	}

	authorID, ok := r.authors[authorKey]
	if !ok {
		authorID = int64(len(r.authors) + 1)
		r.authors[authorKey] = authorID
	}

	identity := titleKey + "|" + authorKey
	bookID, ok := r.byKey[identity]
	if !ok {
		bookID = int64(len(r.byKey) + 1)
		r.byKey[identity] = bookID
		r.store.facts[bookID] = db.BookFact{
			BookID:          bookID,
			Title:           ev.Title,
			AuthorName:      ev.Author,
			PageCount:       ev.PageCount,
			AverageRating:   ev.AverageRating,
			GlobalReadCount: 10,
		}
	}

	return &catalog.Resolution{
		Book:   db.Book{BookID: bookID, Title: ev.Title, NormalizedTitle: titleKey, AuthorID: authorID},
		Author: db.Author{AuthorID: authorID, Name: ev.Author, NormalizedName: authorKey},
	}, nil
}

type fakeCommunity struct {
	recorded map[string][]community.Read
	snapshot *community.Snapshot
}

func (f *fakeCommunity) RecordReads(ctx context.Context, ownerKey string, reads []community.Read) (int, error) {
	if f.recorded == nil {
		f.recorded = make(map[string][]community.Read)
	}
	f.recorded[ownerKey] = append(f.recorded[ownerKey], reads...)
	return len(reads), nil
}

func (f *fakeCommunity) Snapshot() *community.Snapshot { return f.snapshot }

type fakeVibes struct {
	phrases []string
	err     error
	calls   int
}

func (f *fakeVibes) Get(ctx context.Context, fingerprint string, profile dna.Profile) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.phrases, nil
}

func newTestService(store *fakeStore, comm Community, vibes VibeCache) *Service {
	rules, err := dna.LoadArchetypeRules("")
	if err != nil {
		panic(err)
	}
	return NewService(store, newFakeResolver(store), comm, nil, vibes, rules, nil, time.Hour, zerolog.Nop())
}

func TestSubmitRejectsUnknownSchemaBeforeEnqueue(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, &fakeCommunity{}, nil)

	_, err := svc.Submit(context.Background(), "user:1", "librarything-xml", []byte("data"))
	if !errors.Is(err, importer.ErrUnsupportedSchema) {
		t.Fatalf("expected ErrUnsupportedSchema, got %v", err)
	}
	if len(store.jobs) != 0 {
		t.Fatal("nothing may be enqueued for an unknown schema")
	}
}

func TestBuildProfileCollapsesVariantRows(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	comm := &fakeCommunity{snapshot: &community.Snapshot{
		Cuts: db.BracketCuts{P90: 100, P70: 50, P50: 20, P30: 5, P10: 1},
	}}
	svc := newTestService(store, comm, &fakeVibes{phrases: []string{"a", "b", "c", "d"}})

	profile, skipped, err := svc.BuildProfile(context.Background(), "user:1", importer.SchemaGoodreadsCSV, []byte(goodreadsExport))
	if err != nil {
		t.Fatalf("build profile: %v", err)
	}
	if skipped != 0 {
		t.Fatalf("expected no skipped rows, got %d", skipped)
	}

	// Both Salinger variants land on one book.
	if profile.Stats.TotalBooks != 2 {
		t.Fatalf("expected 2 distinct books, got %d", profile.Stats.TotalBooks)
	}
	if got := len(comm.recorded["user:1"]); got != 2 {
		t.Fatalf("expected 2 recorded reads, got %d", got)
	}
	if profile.Fingerprint == "" {
		t.Fatal("expected a fingerprint")
	}
	if len(profile.VibePhrases) != 4 {
		t.Fatalf("expected vibe phrases, got %v", profile.VibePhrases)
	}
	if len(profile.Brackets) == 0 {
		t.Fatal("expected bracket shares with a snapshot present")
	}
	if profile.Archetype.Name == "" {
		t.Fatal("expected an archetype")
	}
}

func TestBuildProfileFingerprintIsStableAcrossRuns(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, &fakeCommunity{}, nil)

	first, _, err := svc.BuildProfile(context.Background(), "user:1", importer.SchemaGoodreadsCSV, []byte(goodreadsExport))
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, _, err := svc.BuildProfile(context.Background(), "user:1", importer.SchemaGoodreadsCSV, []byte(goodreadsExport))
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if first.Fingerprint != second.Fingerprint {
		t.Fatalf("fingerprint drifted: %s vs %s", first.Fingerprint, second.Fingerprint)
	}
}

func TestRunJobPersistsProfileAndMarksDone(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	comm := &fakeCommunity{}
	svc := newTestService(store, comm, nil)

	job, err := svc.Submit(context.Background(), AnonOwnerKey("tok123"), importer.SchemaGoodreadsCSV, []byte(goodreadsExport))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	claimed, err := store.ClaimNextProfileJob(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	svc.runJob(context.Background(), zerolog.Nop(), claimed)

	if store.doneJobID != job.JobID {
		t.Fatalf("job not marked done: done=%d failed=%d (%v)", store.doneJobID, store.failedJobID, store.failedCause)
	}

	persisted, err := svc.ProfileByOwner(context.Background(), AnonOwnerKey("tok123"))
	if err != nil {
		t.Fatalf("profile by owner: %v", err)
	}
	if persisted.ExpiresAt == nil {
		t.Fatal("anonymous profiles must carry an expiry")
	}

	var decoded dna.Profile
	if err := json.Unmarshal(persisted.Payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Stats.TotalBooks != 2 {
		t.Fatalf("unexpected payload: %+v", decoded.Stats)
	}
	// Without a vibe cache and without a bracket snapshot the profile
	// records those sections as missing rather than failing.
	missing := strings.Join(decoded.SectionsMissing, ",")
	if !strings.Contains(missing, dna.SectionNarrative) || !strings.Contains(missing, dna.SectionBrackets) {
		t.Fatalf("unexpected missing sections: %v", decoded.SectionsMissing)
	}
}

func TestRunJobMarksFailureOnEmptyImport(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, &fakeCommunity{}, nil)

	empty := "Title,Author,My Rating,Exclusive Shelf\nSome Book,Someone,3,to-read\n"
	job, err := svc.Submit(context.Background(), "user:9", importer.SchemaGoodreadsCSV, []byte(empty))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	claimed, err := store.ClaimNextProfileJob(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	svc.runJob(context.Background(), zerolog.Nop(), claimed)

	if store.failedJobID != job.JobID {
		t.Fatal("expected job to be marked failed")
	}
	if _, err := svc.ProfileByOwner(context.Background(), "user:9"); !errors.Is(err, db.ErrNoRows) {
		t.Fatal("no profile may be persisted for a failed job")
	}
}
