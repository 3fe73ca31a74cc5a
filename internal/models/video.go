package models

import "time"

type Video struct {
	ID          string    `json:"id" dynamodbav:"id"`
	Title       string    `json:"title" dynamodbav:"title"`
	Description string    `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Uploader    string    `json:"uploader" dynamodbav:"uploader"`
	FilePath    string    `json:"file_path,omitempty" dynamodbav:"file_path,omitempty"`
	FilePathOrg string    `json:"file_path_org,omitempty" dynamodbav:"file_path_org,omitempty"`
	Timestamp   time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// VideoSummary is the projection returned by listings and search.
type VideoSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Uploader  string    `json:"uploader"`
	Timestamp time.Time `json:"timestamp"`
}

func (v Video) Summary() VideoSummary {
	return VideoSummary{
		ID:        v.ID,
		Title:     v.Title,
		Uploader:  v.Uploader,
		Timestamp: v.Timestamp,
	}
}
