package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/grvbrk/vidcatalog_server/internal/models"
	"github.com/jackc/pgconn"
)

const pgUniqueViolation = "23505"

// created_at rendered the way Filter sees it: RFC3339Nano in UTC, trailing
// fractional zeros dropped.
const pgTimestampText = `(regexp_replace(to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US'), '\.?0+$', '') || 'Z')`

// filterable columns; optional ones hold an empty string when absent.
var pgColumns = map[string]struct {
	column   string
	optional bool
}{
	AttrID:          {"id", false},
	AttrTitle:       {"title", false},
	AttrDescription: {"description", true},
	AttrUploader:    {"uploader", false},
	AttrFilePath:    {"file_path", true},
	AttrFilePathOrg: {"file_path_org", true},
	AttrTimestamp:   {pgTimestampText, false},
}

type PostgresVideoStore struct {
	db *sql.DB
}

var _ VideoStore = (*PostgresVideoStore)(nil)

func NewPostgresVideoStore(db *sql.DB) *PostgresVideoStore {
	if db == nil {
		panic("db cannot be nil for PostgresVideoStore")
	}
	return &PostgresVideoStore{db: db}
}

func (pg *PostgresVideoStore) PutVideo(ctx context.Context, video *models.Video) error {
	query := `
		INSERT INTO videos (id, title, description, uploader, file_path, file_path_org, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := pg.db.ExecContext(ctx, query,
		video.ID,
		video.Title,
		video.Description,
		video.Uploader,
		video.FilePath,
		video.FilePathOrg,
		video.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "idx_videos_title" {
			return fmt.Errorf("%w: %s", ErrTitleTaken, video.Title)
		}
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

func (pg *PostgresVideoStore) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	query := `
		SELECT id, title, description, uploader, file_path, file_path_org, created_at
		FROM videos
		WHERE id = $1
	`
	var v models.Video
	err := pg.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&v.Title,
		&v.Description,
		&v.Uploader,
		&v.FilePath,
		&v.FilePathOrg,
		&v.Timestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read video: %w", err)
	}
	v.Timestamp = v.Timestamp.UTC()
	return &v, nil
}

func (pg *PostgresVideoStore) DeleteVideo(ctx context.Context, id string) error {
	_, err := pg.db.ExecContext(ctx, "DELETE FROM videos WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return nil
}

// ScanVideos pages by ascending id. Unlike DynamoDB the filter runs before
// the limit, so every page except the last is full.
func (pg *PostgresVideoStore) ScanVideos(ctx context.Context, params ScanParams) (*ScanPage, error) {
	after, err := decodeIDToken(params.Token)
	if err != nil {
		return nil, err
	}

	whereClauses := []string{"id > $1"}
	args := []interface{}{after}

	if f := params.Filter; f != nil {
		col, ok := pgColumns[f.Field]
		if !ok {
			// no row carries this attribute
			return &ScanPage{Videos: []models.Video{}}, nil
		}
		args = append(args, f.Value)
		switch f.Op {
		case OpEquals:
			whereClauses = append(whereClauses, fmt.Sprintf("%s = $%d", col.column, len(args)))
		case OpContains:
			whereClauses = append(whereClauses, fmt.Sprintf("strpos(%s, $%d) > 0", col.column, len(args)))
		default:
			return nil, fmt.Errorf("unsupported filter op %d", f.Op)
		}
		if col.optional {
			whereClauses = append(whereClauses, fmt.Sprintf("%s <> ''", col.column))
		}
	}

	query := fmt.Sprintf(`
		SELECT id, title, description, uploader, file_path, file_path_org, created_at
		FROM videos
		WHERE %s
		ORDER BY id
	`, strings.Join(whereClauses, " AND "))

	if params.Limit > 0 {
		// one extra row tells us whether there is a next page
		args = append(args, params.Limit+1)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := pg.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan videos: %w", err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		var v models.Video
		if err := rows.Scan(&v.ID, &v.Title, &v.Description, &v.Uploader, &v.FilePath, &v.FilePathOrg, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		v.Timestamp = v.Timestamp.UTC()
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	page := &ScanPage{}
	if params.Limit > 0 && len(videos) > params.Limit {
		videos = videos[:params.Limit]
		page.NextToken = encodeIDToken(videos[len(videos)-1].ID)
	}

	page.Videos = make([]models.Video, 0, len(videos))
	for _, v := range videos {
		page.Videos = append(page.Videos, project(v, params.Projection))
	}
	return page, nil
}
