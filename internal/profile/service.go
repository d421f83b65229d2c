package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/catalog"
	"github.com/vanajmoorthy/bibliotype/internal/community"
	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/dna"
	"github.com/vanajmoorthy/bibliotype/internal/enrich"
	"github.com/vanajmoorthy/bibliotype/internal/globaltime"
	"github.com/vanajmoorthy/bibliotype/internal/importer"
	"github.com/vanajmoorthy/bibliotype/internal/vibe"
)

// anonPrefix marks owner keys whose profiles expire.
const anonPrefix = "anon:"

// UserOwnerKey builds the owner key for an authenticated user.
func UserOwnerKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// AnonOwnerKey builds the owner key for an unauthenticated import token.
func AnonOwnerKey(token string) string {
	return anonPrefix + token
}

// Store is the persistence surface the orchestrator needs. *db.Pool
// satisfies it.
type Store interface {
	EnqueueProfileJob(ctx context.Context, ownerKey, schemaTag string, payload []byte) (db.ProfileJob, error)
	ClaimNextProfileJob(ctx context.Context) (db.ProfileJob, error)
	MarkProfileJobDone(ctx context.Context, jobID int64, rowsSkipped int) error
	MarkProfileJobFailed(ctx context.Context, jobID int64, cause error) error
	GetProfileJobByUUID(ctx context.Context, jobUUID string) (db.ProfileJob, error)
	UpsertProfile(ctx context.Context, ownerKey, fingerprint string, payload json.RawMessage, expiresAt *time.Time) error
	GetProfileByOwner(ctx context.Context, ownerKey string) (db.Profile, error)
	SweepExpiredProfiles(ctx context.Context) (int64, error)
	ListBookFacts(ctx context.Context, bookIDs []int64) ([]db.BookFact, error)
}

// Resolver matches read events to catalog identities.
type Resolver interface {
	Resolve(ctx context.Context, ev *importer.ReadEvent) (*catalog.Resolution, error)
}

// Community records reads and serves the current bracket snapshot.
type Community interface {
	RecordReads(ctx context.Context, ownerKey string, reads []community.Read) (int, error)
	Snapshot() *community.Snapshot
}

// Enricher fills catalog metadata gaps. Optional; a nil enricher just leaves
// fields unknown.
type Enricher interface {
	EnrichBook(ctx context.Context, cb db.CatalogBook) (enrich.Result, error)
}

// VibeCache serves narrative phrases. Optional; a nil cache means profiles
// without a narrative.
type VibeCache interface {
	Get(ctx context.Context, fingerprint string, profile dna.Profile) ([]string, error)
}

// Service is the import orchestrator: it accepts raw exports, runs the
// normalize-resolve-enrich-score pipeline in background workers, and persists
// the finished profile wholesale.
type Service struct {
	store     Store
	resolver  Resolver
	community Community
	enricher  Enricher
	vibes     VibeCache
	rules     *dna.ArchetypeRules
	sentiment *dna.SentimentScorer
	anonTTL   time.Duration
	logger    zerolog.Logger

	pollInterval time.Duration
	wg           sync.WaitGroup
}

func NewService(
	store Store,
	resolver Resolver,
	comm Community,
	enricher Enricher,
	vibes VibeCache,
	rules *dna.ArchetypeRules,
	sentiment *dna.SentimentScorer,
	anonTTL time.Duration,
	logger zerolog.Logger,
) *Service {
	if anonTTL <= 0 {
		anonTTL = 24 * time.Hour
	}
	return &Service{
		store:        store,
		resolver:     resolver,
		community:    comm,
		enricher:     enricher,
		vibes:        vibes,
		rules:        rules,
		sentiment:    sentiment,
		anonTTL:      anonTTL,
		logger:       logger.With().Str("component", "profile").Logger(),
		pollInterval: time.Second,
	}
}

// Submit validates the schema tag and enqueues the import as a background
// job. Unknown tags fail here, before anything touches the catalog.
func (s *Service) Submit(ctx context.Context, ownerKey, schemaTag string, payload []byte) (db.ProfileJob, error) {
	if s == nil || s.store == nil {
		return db.ProfileJob{}, fmt.Errorf("profile service is not initialized")
	}
	if strings.TrimSpace(ownerKey) == "" {
		return db.ProfileJob{}, fmt.Errorf("owner key is required")
	}
	if len(payload) == 0 {
		return db.ProfileJob{}, fmt.Errorf("import payload is empty")
	}
	if err := importer.ValidateSchemaTag(schemaTag); err != nil {
		return db.ProfileJob{}, err
	}
	return s.store.EnqueueProfileJob(ctx, ownerKey, strings.ToLower(strings.TrimSpace(schemaTag)), payload)
}

// Status returns the job for polling.
func (s *Service) Status(ctx context.Context, jobUUID string) (db.ProfileJob, error) {
	return s.store.GetProfileJobByUUID(ctx, jobUUID)
}

// ProfileByOwner returns the persisted profile payload for an owner key.
// Expired anonymous profiles read as absent.
func (s *Service) ProfileByOwner(ctx context.Context, ownerKey string) (db.Profile, error) {
	return s.store.GetProfileByOwner(ctx, ownerKey)
}

// StartWorkers launches the worker pool. Workers stop claiming when ctx
// ends; Wait blocks until in-flight jobs finish.
func (s *Service) StartWorkers(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func(worker int) {
			defer s.wg.Done()
			s.workerLoop(ctx, worker)
		}(i)
	}
}

// Wait blocks until every worker has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) workerLoop(ctx context.Context, worker int) {
	logger := s.logger.With().Int("worker", worker).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := s.store.ClaimNextProfileJob(ctx)
		if errors.Is(err, db.ErrNoRows) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pollInterval):
			}
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Msg("claim job failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pollInterval):
			}
			continue
		}

		// A claimed job runs to completion detached from the worker
		// context: issued external calls finish and persist.
		s.runJob(context.WithoutCancel(ctx), logger, job)
	}
}

func (s *Service) runJob(ctx context.Context, logger zerolog.Logger, job db.ProfileJob) {
	logger.Info().Str("job", job.JobUUID).Str("owner", job.OwnerKey).Msg("job started")

	profile, skipped, err := s.BuildProfile(ctx, job.OwnerKey, job.SchemaTag, job.Payload)
	if err != nil {
		logger.Warn().Err(err).Str("job", job.JobUUID).Msg("job failed")
		if markErr := s.store.MarkProfileJobFailed(ctx, job.JobID, err); markErr != nil {
			logger.Error().Err(markErr).Str("job", job.JobUUID).Msg("failed to record job failure")
		}
		return
	}

	if err := s.persistProfile(ctx, job.OwnerKey, profile); err != nil {
		logger.Warn().Err(err).Str("job", job.JobUUID).Msg("profile persist failed")
		if markErr := s.store.MarkProfileJobFailed(ctx, job.JobID, err); markErr != nil {
			logger.Error().Err(markErr).Str("job", job.JobUUID).Msg("failed to record job failure")
		}
		return
	}

	if err := s.store.MarkProfileJobDone(ctx, job.JobID, skipped); err != nil {
		logger.Error().Err(err).Str("job", job.JobUUID).Msg("failed to mark job done")
		return
	}
	if _, err := s.store.SweepExpiredProfiles(ctx); err != nil {
		logger.Debug().Err(err).Msg("expired profile sweep failed")
	}
	logger.Info().Str("job", job.JobUUID).Int("rows_skipped", skipped).Msg("job finished")
}

// BuildProfile runs the full pipeline for one export payload and returns the
// assembled profile plus the number of skipped rows. It does not persist.
func (s *Service) BuildProfile(ctx context.Context, ownerKey, schemaTag string, payload []byte) (*dna.Profile, int, error) {
	events, err := importer.Open(schemaTag, payload)
	if err != nil {
		return nil, 0, err
	}

	type readerData struct {
		rating   *float64
		dateRead *time.Time
		review   string
		tags     []string
	}

	var (
		order        []int64
		identityKeys []string
		reads        []community.Read
		resolutions  = make(map[int64]*catalog.Resolution)
		perBook      = make(map[int64]readerData)
		resolveSkips int
	)

	for {
		ev, err := events.Next()
		if err != nil {
			return nil, 0, err
		}
		if ev == nil {
			break
		}

		res, err := s.resolver.Resolve(ctx, ev)
		if err != nil {
			// One unresolvable row is a skip, not a failed import.
			s.logger.Debug().Err(err).Str("title", ev.Title).Msg("row skipped during resolution")
			resolveSkips++
			continue
		}

		bookID := res.Book.BookID
		if _, seen := resolutions[bookID]; !seen {
			resolutions[bookID] = res
			order = append(order, bookID)
			identityKeys = append(identityKeys, res.Book.NormalizedTitle+"|"+res.Author.NormalizedName)
			reads = append(reads, community.Read{BookID: bookID, Rating: ev.Rating, DateRead: ev.DateRead})
			perBook[bookID] = readerData{rating: ev.Rating, dateRead: ev.DateRead, review: ev.Review, tags: ev.Tags}
		} else if data := perBook[bookID]; data.review == "" && ev.Review != "" {
			// Keep the first row's data but do not lose a review a
			// duplicate row carries.
			data.review = ev.Review
			perBook[bookID] = data
		}
	}
	skipped := events.Skipped() + resolveSkips

	if len(order) == 0 {
		return nil, skipped, fmt.Errorf("no finished reads in import")
	}

	if s.community != nil {
		if _, err := s.community.RecordReads(ctx, ownerKey, reads); err != nil {
			return nil, skipped, fmt.Errorf("record reads: %w", err)
		}
	}

	if s.enricher != nil {
		for _, bookID := range order {
			res := resolutions[bookID]
			cb := db.CatalogBook{Book: res.Book, AuthorName: res.Author.Name}
			if _, err := s.enricher.EnrichBook(ctx, cb); err != nil {
				s.logger.Debug().Err(err).Int64("book_id", bookID).Msg("enrichment skipped")
			}
		}
	}

	facts, err := s.store.ListBookFacts(ctx, order)
	if err != nil {
		return nil, skipped, fmt.Errorf("load book facts: %w", err)
	}

	books := make([]dna.ReadBook, 0, len(facts))
	for _, fact := range facts {
		data := perBook[fact.BookID]
		books = append(books, dna.ReadBook{
			Fact:     fact,
			Rating:   data.rating,
			DateRead: data.dateRead,
			Review:   data.review,
			Tags:     data.tags,
		})
	}

	profile := s.score(ctx, ownerKey, identityKeys, books)
	profile.RowsSkipped = skipped
	return profile, skipped, nil
}

func (s *Service) score(ctx context.Context, ownerKey string, identityKeys []string, books []dna.ReadBook) *dna.Profile {
	profile := &dna.Profile{
		OwnerKey:    ownerKey,
		GeneratedAt: globaltime.UTC(),
		Fingerprint: vibe.Fingerprint(identityKeys),
		Stats:       dna.ComputeStats(books),
		Mainstream:  dna.ComputeMainstream(books),
		MostNiche:   dna.MostNiche(books),
	}
	profile.Controversial = dna.MostControversial(books, 3)

	if s.rules != nil {
		profile.Archetype = s.rules.PickArchetype(books)
	} else {
		profile.SectionsMissing = append(profile.SectionsMissing, dna.SectionArchetype)
	}

	if s.community != nil {
		if snapshot := s.community.Snapshot(); snapshot != nil {
			profile.Brackets = dna.ComputeBrackets(snapshot.Cuts, books)
		} else {
			profile.SectionsMissing = append(profile.SectionsMissing, dna.SectionBrackets)
		}
	} else {
		profile.SectionsMissing = append(profile.SectionsMissing, dna.SectionBrackets)
	}

	if s.sentiment != nil {
		profile.Highlights = s.sentiment.Highlights(books)
	}
	if profile.Highlights.MostPositive == nil && profile.Highlights.MostNegative == nil {
		profile.SectionsMissing = append(profile.SectionsMissing, dna.SectionHighlights)
	}

	if profile.Mainstream.KnownBooks == 0 {
		profile.SectionsMissing = append(profile.SectionsMissing, dna.SectionMainstream)
	}

	if s.vibes != nil {
		phrases, err := s.vibes.Get(ctx, profile.Fingerprint, *profile)
		if err != nil {
			// A missing narrative never fails the profile.
			s.logger.Debug().Err(err).Str("owner", ownerKey).Msg("narrative unavailable")
			profile.SectionsMissing = append(profile.SectionsMissing, dna.SectionNarrative)
		} else {
			profile.VibePhrases = phrases
		}
	} else {
		profile.SectionsMissing = append(profile.SectionsMissing, dna.SectionNarrative)
	}

	return profile
}

func (s *Service) persistProfile(ctx context.Context, ownerKey string, profile *dna.Profile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	var expiresAt *time.Time
	if strings.HasPrefix(ownerKey, anonPrefix) {
		expiry := globaltime.UTC().Add(s.anonTTL)
		expiresAt = &expiry
	}
	return s.store.UpsertProfile(ctx, ownerKey, profile.Fingerprint, payload, expiresAt)
}
