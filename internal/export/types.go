// Package export renders project reports as HTML or PDF.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Request contains parameters for an export operation
type Request struct {
	ProjectID string
	Format    Format
	// Now anchors the overdue calculation and the report date. Zero means time.Now.
	Now time.Time
}

// ProjectInfo holds project metadata
type ProjectInfo struct {
	ID          string
	Name        string
	Description string
	TeamName    string
}

// StatusInfo is one board column
type StatusInfo struct {
	ID    string
	Name  string
	Color string
}

// IssueInfo is one row of the report
type IssueInfo struct {
	Title        string
	StatusID     string
	Priority     string
	AssigneeName string
	DueDate      *time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat is returned for formats other than pdf and html.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
