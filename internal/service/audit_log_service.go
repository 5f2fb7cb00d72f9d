package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/mapper"
	"github.com/clearbill/billing-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditLogService records security-relevant events. The trail is append-only;
// nothing here exposes update or delete.
type AuditLogService struct {
	auditRepo *repository.AuditLogRepository
	logger    *zap.Logger
}

// NewAuditLogService creates a new audit log service
func NewAuditLogService(auditRepo *repository.AuditLogRepository, logger *zap.Logger) *AuditLogService {
	return &AuditLogService{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// LogEntry represents the input for creating an audit log entry
type LogEntry struct {
	Action    domain.AuditAction
	UserID    *uuid.UUID
	UserEmail string
	UserName  string
	Details   map[string]interface{}
}

// Log creates an audit log entry. Failures are logged but never propagated:
// an audit write must not fail the operation it describes. Callers that need
// audit-before-action semantics (impersonation denials) use Record instead.
func (s *AuditLogService) Log(ctx context.Context, r *http.Request, entry LogEntry) {
	if err := s.Record(ctx, r, entry); err != nil {
		s.logger.Error("failed to create audit log",
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}

// Record creates an audit log entry and returns the write error
func (s *AuditLogService) Record(ctx context.Context, r *http.Request, entry LogEntry) error {
	auditLog := &domain.AuditLog{
		UserID:    entry.UserID,
		UserEmail: entry.UserEmail,
		UserName:  entry.UserName,
		Action:    entry.Action,
	}

	if r != nil {
		auditLog.IPAddress = clientIP(r)
		auditLog.UserAgent = r.UserAgent()
	}

	// Serialize details (use "null" for JSONB compatibility when no value)
	if entry.Details != nil {
		if detailsJSON, err := json.Marshal(entry.Details); err == nil {
			auditLog.Details = string(detailsJSON)
		} else {
			auditLog.Details = "null"
		}
	} else {
		auditLog.Details = "null"
	}

	return s.auditRepo.Create(ctx, auditLog)
}

// List retrieves audit log entries with optional filters, newest first
func (s *AuditLogService) List(ctx context.Context, userID *uuid.UUID, action *domain.AuditAction, page, pageSize int) (*domain.PaginatedResponse, error) {
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}
	if page < 1 {
		page = 1
	}

	entries, total, err := s.auditRepo.List(ctx, userID, action, page, pageSize)
	if err != nil {
		return nil, err
	}

	dtos := make([]domain.AuditLogDTO, len(entries))
	for i := range entries {
		dtos[i] = mapper.ToAuditLogDTO(&entries[i])
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// clientIP extracts the originating client IP from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
