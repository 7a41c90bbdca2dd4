package api

import (
	"github.com/starford/tether/internal/companion"
	"github.com/starford/tether/internal/visibility"
)

// CompanionResponse describes the note bound to a source file.
type CompanionResponse struct {
	Source   string   `json:"source" example:"Media/clip.mp4" validate:"required"`
	Note     string   `json:"note" example:"Media/clip.md" validate:"required"`
	Declared bool     `json:"declared"`
	Embeds   []string `json:"embeds" validate:"required"`
}

// MissingCompanionResponse is returned when a source has no note yet.
type MissingCompanionResponse struct {
	Error    string `json:"error" example:"not found" validate:"required"`
	NotePath string `json:"note_path" example:"Media/clip.md" validate:"required"`
}

// BatchRequest selects sources by explicit paths or by folder.
type BatchRequest struct {
	Paths  []string `json:"paths" example:"Media/clip.mp4"`
	Folder string   `json:"folder" example:"Media"`
}

// PathsRequest lists source paths.
type PathsRequest struct {
	Paths []string `json:"paths" example:"Media/clip.mp4" validate:"required"`
}

// PathsResponse lists source paths.
type PathsResponse struct {
	Paths []string `json:"paths" validate:"required"`
}

// BatchResponse is the aggregate outcome of a batch.
type BatchResponse = companion.BatchResult

// TreeResponse wraps the file tree snapshot.
type TreeResponse struct {
	Entries []visibility.Entry `json:"entries" validate:"required"`
	Hidden  int                `json:"hidden" example:"3"`
}

// SourceUploadResponse is returned after a successful source upload.
type SourceUploadResponse struct {
	Path string `json:"path" example:"inbox/scan.pdf" validate:"required"`
	Size int64  `json:"size" example:"12345" validate:"required"`
	Note string `json:"note,omitempty" example:"inbox/scan.md"`
}
