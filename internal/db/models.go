package db

import (
	"encoding/json"
	"time"
)

// Author maps authors. normalized_name is the dedup key: variant renderings of
// the same name collapse to one row.
type Author struct {
	AuthorID            int64      `gorm:"column:author_id;primaryKey;autoIncrement"`
	Name                string     `gorm:"column:name;type:text;not null"`
	NormalizedName      string     `gorm:"column:normalized_name;type:text;not null;unique"`
	IsMainstream        bool       `gorm:"column:is_mainstream;not null;default:false"`
	WorkCount           int        `gorm:"column:work_count;type:integer;not null;default:0"`
	MonthlyPageviews    int        `gorm:"column:monthly_pageviews;type:integer;not null;default:0"`
	MainstreamCheckedAt *time.Time `gorm:"column:mainstream_checked_at;type:timestamptz"`
	CreatedAt           time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Author) TableName() string { return "authors" }

// Publisher maps publishers. A curated row's mainstream flag is authoritative
// and never overwritten by heuristic research.
type Publisher struct {
	PublisherID    int64     `gorm:"column:publisher_id;primaryKey;autoIncrement"`
	Name           string    `gorm:"column:name;type:text;not null"`
	NormalizedName string    `gorm:"column:normalized_name;type:text;not null;unique"`
	IsMainstream   bool      `gorm:"column:is_mainstream;not null;default:false"`
	Curated        bool      `gorm:"column:curated;not null;default:false"`
	ParentID       *int64    `gorm:"column:parent_id;type:bigint"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Publisher) TableName() string { return "publishers" }

// Book maps books. Exactly one row exists per (normalized_title, author_id)
// pair; resolution converges on it regardless of source-string variance.
type Book struct {
	BookID          int64      `gorm:"column:book_id;primaryKey;autoIncrement"`
	Title           string     `gorm:"column:title;type:text;not null"`
	NormalizedTitle string     `gorm:"column:normalized_title;type:text;not null"`
	AuthorID        int64      `gorm:"column:author_id;type:bigint;not null"`
	PublisherID     *int64     `gorm:"column:publisher_id;type:bigint"`
	PageCount       *int       `gorm:"column:page_count;type:integer"`
	PublishYear     *int       `gorm:"column:publish_year;type:integer"`
	ISBN13          *string    `gorm:"column:isbn13;type:text"`
	AverageRating   *float64   `gorm:"column:average_rating;type:double precision"`
	RatingsCount    *int       `gorm:"column:ratings_count;type:integer"`
	GlobalReadCount int64      `gorm:"column:global_read_count;type:bigint;not null;default:0"`
	MainstreamScore *float64   `gorm:"column:mainstream_score;type:double precision"`
	EnrichedAt      *time.Time `gorm:"column:enriched_at;type:timestamptz"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Book) TableName() string { return "books" }

// BookGenre maps book_genres: one row per (book, canonical genre).
type BookGenre struct {
	BookID int64  `gorm:"column:book_id;type:bigint;primaryKey"`
	Genre  string `gorm:"column:genre;type:text;primaryKey"`
}

func (BookGenre) TableName() string { return "book_genres" }

// UserBook maps user_books, the per-owner read ledger. The unique
// (owner_key, book_id) pair keeps re-imports from double-counting reads.
type UserBook struct {
	UserBookID int64      `gorm:"column:user_book_id;primaryKey;autoIncrement"`
	OwnerKey   string     `gorm:"column:owner_key;type:text;not null"`
	BookID     int64      `gorm:"column:book_id;type:bigint;not null"`
	Rating     *float64   `gorm:"column:rating;type:double precision"`
	DateRead   *time.Time `gorm:"column:date_read;type:timestamptz"`
	CreatedAt  time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (UserBook) TableName() string { return "user_books" }

// User maps users for the minimal account surface.
type User struct {
	UserID       int64     `gorm:"column:user_id;primaryKey;autoIncrement"`
	Username     string    `gorm:"column:username;type:text;not null;unique"`
	PasswordHash string    `gorm:"column:password_hash;type:text;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (User) TableName() string { return "users" }

// Profile maps profiles. One row per owner, replaced wholesale per import.
// Anonymous owners carry an expiry; authenticated owners do not.
type Profile struct {
	ProfileID   int64           `gorm:"column:profile_id;primaryKey;autoIncrement"`
	OwnerKey    string          `gorm:"column:owner_key;type:text;not null;unique"`
	Fingerprint string          `gorm:"column:fingerprint;type:text;not null"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ExpiresAt   *time.Time      `gorm:"column:expires_at;type:timestamptz"`
	CreatedAt   time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Profile) TableName() string { return "profiles" }

// ProfileJob maps profile_jobs, the background unit of work for one import.
type ProfileJob struct {
	JobID       int64      `gorm:"column:job_id;primaryKey;autoIncrement"`
	JobUUID     string     `gorm:"column:job_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	OwnerKey    string     `gorm:"column:owner_key;type:text;not null"`
	SchemaTag   string     `gorm:"column:schema_tag;type:text;not null"`
	Payload     []byte     `gorm:"column:payload;type:bytea;not null"`
	Status      string     `gorm:"column:status;type:text;not null;default:queued"`
	ErrorText   *string    `gorm:"column:error_text;type:text"`
	RowsSkipped int        `gorm:"column:rows_skipped;type:integer;not null;default:0"`
	StartedAt   *time.Time `gorm:"column:started_at;type:timestamptz"`
	FinishedAt  *time.Time `gorm:"column:finished_at;type:timestamptz"`
	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ProfileJob) TableName() string { return "profile_jobs" }

// VibeEntry maps vibe_entries, the narrative cache keyed by fingerprint.
// A pending row is a generation claim; a ready row holds the phrases.
type VibeEntry struct {
	Fingerprint string          `gorm:"column:fingerprint;type:text;primaryKey"`
	Status      string          `gorm:"column:status;type:text;not null;default:pending"`
	Phrases     json.RawMessage `gorm:"column:phrases;type:jsonb"`
	ClaimedAt   time.Time       `gorm:"column:claimed_at;type:timestamptz;not null;default:now()"`
	CompletedAt *time.Time      `gorm:"column:completed_at;type:timestamptz"`
}

func (VibeEntry) TableName() string { return "vibe_entries" }

// QuotaCounter maps quota_counters, one row per metered external source.
type QuotaCounter struct {
	Source    string    `gorm:"column:source;type:text;primaryKey"`
	Day       time.Time `gorm:"column:day;type:date;not null"`
	Remaining int       `gorm:"column:remaining;type:integer;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (QuotaCounter) TableName() string { return "quota_counters" }

// AggregateAnalytics maps aggregate_analytics, the singleton bracket snapshot
// over global_read_count. Replaced atomically on each recomputation.
type AggregateAnalytics struct {
	AnalyticsID int64     `gorm:"column:analytics_id;primaryKey"`
	TotalBooks  int64     `gorm:"column:total_books;type:bigint;not null"`
	CutP90      int64     `gorm:"column:cut_p90;type:bigint;not null"`
	CutP70      int64     `gorm:"column:cut_p70;type:bigint;not null"`
	CutP50      int64     `gorm:"column:cut_p50;type:bigint;not null"`
	CutP30      int64     `gorm:"column:cut_p30;type:bigint;not null"`
	CutP10      int64     `gorm:"column:cut_p10;type:bigint;not null"`
	ComputedAt  time.Time `gorm:"column:computed_at;type:timestamptz;not null"`
}

func (AggregateAnalytics) TableName() string { return "aggregate_analytics" }

func autoMigrateModels() []any {
	return []any{
		&Author{},
		&Publisher{},
		&Book{},
		&BookGenre{},
		&UserBook{},
		&User{},
		&Profile{},
		&ProfileJob{},
		&VibeEntry{},
		&QuotaCounter{},
		&AggregateAnalytics{},
	}
}
