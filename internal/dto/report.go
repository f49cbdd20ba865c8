package dto

import (
	"time"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
)

// ReportRequest is the POST /reports/groups payload.
type ReportRequest struct {
	Group  string              `json:"group" validate:"required"`
	Format models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	Period string              `json:"period,omitempty"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress.
type ReportStatusResponse struct {
	ID         string              `json:"id"`
	Group      string              `json:"group"`
	Period     string              `json:"period,omitempty"`
	Format     models.ReportFormat `json:"format"`
	Status     models.ReportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
