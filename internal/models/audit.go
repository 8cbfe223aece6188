package models

import "time"

// AuditOutcome classifies how a lifecycle command ended
type AuditOutcome string

const (
	AuditSuccess AuditOutcome = "success"
	AuditFailure AuditOutcome = "failure"
)

// AuditLog represents one executed lifecycle command
type AuditLog struct {
	Record
	Operation    string       `gorm:"type:varchar(100);not null;index" json:"operation"`
	ResourceType string       `gorm:"type:varchar(50);index" json:"resource_type"`
	ResourceID   string       `gorm:"type:varchar(36);index" json:"resource_id"`
	Outcome      AuditOutcome `gorm:"type:varchar(20);index" json:"outcome"`
	ErrorKind    string       `gorm:"type:varchar(50)" json:"error_kind,omitempty"`
	ErrorMessage string       `gorm:"type:text" json:"error_message,omitempty"`
	Duration     int64        `json:"duration_ms"` // milliseconds
	OccurredAt   time.Time    `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (AuditLog) TableName() string {
	return "audit_logs"
}
