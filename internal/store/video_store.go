package store

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/grvbrk/vidcatalog_server/internal/models"
)

var (
	ErrVideoNotFound = errors.New("video not found")
	ErrTitleTaken    = errors.New("title already exists")
	ErrInvalidToken  = errors.New("invalid continuation token")
)

type FilterOp int

const (
	OpEquals FilterOp = iota
	OpContains
)

// Filter is a single server-side predicate on one attribute.
// Field is used as given; a field no record carries matches nothing.
type Filter struct {
	Field string
	Op    FilterOp
	Value string
}

type ScanParams struct {
	Filter     *Filter
	Projection []string
	// Limit bounds the number of items the store examines for this page.
	// Zero means no limit.
	Limit int
	Token string
}

type ScanPage struct {
	Videos    []models.Video
	NextToken string
}

type VideoStore interface {
	PutVideo(ctx context.Context, video *models.Video) error
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	DeleteVideo(ctx context.Context, id string) error
	ScanVideos(ctx context.Context, params ScanParams) (*ScanPage, error)
}

// Attribute names as they are stored.
const (
	AttrID          = "id"
	AttrTitle       = "title"
	AttrDescription = "description"
	AttrUploader    = "uploader"
	AttrFilePath    = "file_path"
	AttrFilePathOrg = "file_path_org"
	AttrTimestamp   = "timestamp"
)

var SummaryProjection = []string{AttrID, AttrTitle, AttrUploader, AttrTimestamp}

func attribute(v *models.Video, name string) (string, bool) {
	switch name {
	case AttrID:
		return v.ID, true
	case AttrTitle:
		return v.Title, true
	case AttrDescription:
		return v.Description, v.Description != ""
	case AttrUploader:
		return v.Uploader, true
	case AttrFilePath:
		return v.FilePath, v.FilePath != ""
	case AttrFilePathOrg:
		return v.FilePathOrg, v.FilePathOrg != ""
	case AttrTimestamp:
		return v.Timestamp.UTC().Format(time.RFC3339Nano), true
	}
	return "", false
}

// Matches evaluates the filter the same way the DynamoDB adapter does:
// equality or case-sensitive substring on a present attribute.
func (f *Filter) Matches(v *models.Video) bool {
	if f == nil {
		return true
	}
	val, ok := attribute(v, f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEquals:
		return val == f.Value
	case OpContains:
		return strings.Contains(val, f.Value)
	}
	return false
}

// project keeps only the named attributes. An empty projection keeps everything.
func project(v models.Video, fields []string) models.Video {
	if len(fields) == 0 {
		return v
	}
	var out models.Video
	for _, f := range fields {
		switch f {
		case AttrID:
			out.ID = v.ID
		case AttrTitle:
			out.Title = v.Title
		case AttrDescription:
			out.Description = v.Description
		case AttrUploader:
			out.Uploader = v.Uploader
		case AttrFilePath:
			out.FilePath = v.FilePath
		case AttrFilePathOrg:
			out.FilePathOrg = v.FilePathOrg
		case AttrTimestamp:
			out.Timestamp = v.Timestamp
		}
	}
	return out
}

// keyset tokens are used by the stores that page by ascending id.
func encodeIDToken(id string) string {
	if id == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func decodeIDToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(b) == 0 {
		return "", ErrInvalidToken
	}
	return string(b), nil
}
