// Package models holds the entity structs shared across PazPaz's
// persistence, session-lifecycle, vector-store, and payment packages.
package models

import (
	"time"

	"github.com/google/uuid"
)

type WorkspaceStatus string

const (
	WorkspaceActive    WorkspaceStatus = "active"
	WorkspaceSuspended WorkspaceStatus = "suspended"
	WorkspaceDeleted   WorkspaceStatus = "deleted"
)

// Workspace is the tenant root. PaymentProviderConfig is the
// provider's opaque configuration map, stored as plain JSON; it does
// not pass through the field codec.
type Workspace struct {
	ID                    uuid.UUID
	Name                  string
	Status                WorkspaceStatus
	PaymentsEnabled       bool
	PaymentProvider       string
	PaymentProviderConfig map[string]string
	VATRegistered         bool
	VATRate               float64 // percentage, e.g. 17.0
	Currency              string
	ReceiptCounter        int64
	CreatedAt             time.Time
}

type User struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Email       string
	IsActive    bool
	TOTPEnabled bool
	CreatedAt   time.Time
}

// Client is a therapy patient. PHI fields are encrypted at rest and
// are plaintext only in memory once decrypted by the codec.
type Client struct {
	ID                    uuid.UUID
	WorkspaceID           uuid.UUID
	FirstName             string
	LastName              string
	Email                 string
	Phone                 string
	Address               string
	MedicalHistory        string
	EmergencyContact      string
	Notes                 string
	DateOfBirth           *time.Time
	ConsentObtained       bool
	IsActive              bool
	Tags                  []string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type LocationType string

const (
	LocationClinic LocationType = "clinic"
	LocationHome   LocationType = "home"
	LocationOnline LocationType = "online"
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentAttended  AppointmentStatus = "attended"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
	AppointmentCompleted AppointmentStatus = "completed"
)

type PaymentStatus string

const (
	PaymentUnpaid         PaymentStatus = "unpaid"
	PaymentNotPaid        PaymentStatus = "not_paid"
	PaymentSent           PaymentStatus = "payment_sent"
	PaymentPending        PaymentStatus = "pending"
	PaymentPaid           PaymentStatus = "paid"
	PaymentPartiallyPaid  PaymentStatus = "partially_paid"
	PaymentRefunded       PaymentStatus = "refunded"
	PaymentFailed         PaymentStatus = "failed"
	PaymentWaived         PaymentStatus = "waived"
)

type Appointment struct {
	ID             uuid.UUID
	WorkspaceID    uuid.UUID
	ClientID       uuid.UUID
	SessionID      *uuid.UUID
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	LocationType   LocationType
	Status         AppointmentStatus
	PaymentPrice   float64
	PaymentStatus  PaymentStatus
	PaymentMethod  string
	PaidAt         *time.Time
	EditCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Overlaps reports whether a and b's half-open intervals strictly
// intersect: exact adjacency is not a conflict (spec.md §3, §8 property 7).
func (a Appointment) Overlaps(b Appointment) bool {
	return a.ScheduledStart.Before(b.ScheduledEnd) && b.ScheduledStart.Before(a.ScheduledEnd) &&
		!a.ScheduledEnd.Equal(b.ScheduledStart) && !b.ScheduledEnd.Equal(a.ScheduledStart)
}

// ParticipatesInConflictCheck reports whether an appointment in this
// status is ever considered for overlap checking.
func (s AppointmentStatus) ParticipatesInConflictCheck() bool {
	return s == AppointmentScheduled || s == AppointmentAttended
}

type Session struct {
	ID                  uuid.UUID
	WorkspaceID         uuid.UUID
	ClientID            uuid.UUID
	AppointmentID       *uuid.UUID
	Subjective          string
	Objective           string
	Assessment          string
	Plan                string
	Version             int
	IsDraft             bool
	DraftLastSavedAt    *time.Time
	FinalizedAt         *time.Time
	AmendedAt           *time.Time
	AmendmentCount      int
	DeletedAt           *time.Time
	DeletedByUserID     *uuid.UUID
	DeletedReason       string
	PermanentDeleteAfter *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SOAPFields returns the four clinical-note fields as a named map, in
// the field-name vocabulary the vector store and context formatter use.
func (s Session) SOAPFields() map[string]string {
	return map[string]string{
		"subjective": s.Subjective,
		"objective":  s.Objective,
		"assessment": s.Assessment,
		"plan":       s.Plan,
	}
}

// HasContent reports whether at least one SOAP field is non-empty
// after trimming whitespace (spec.md §4.3 finalize precondition).
func (s Session) HasContent() bool {
	for _, v := range s.SOAPFields() {
		if trimmedNonEmpty(v) {
			return true
		}
	}
	return false
}

func trimmedNonEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}

type SessionVersion struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	VersionNumber int
	Subjective    string
	Objective     string
	Assessment    string
	Plan          string
	CreatedAt     time.Time
}

// SessionVector is one 1536-dim embedding for a single SOAP field.
type SessionVector struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	SessionID   uuid.UUID
	FieldName   string
	Embedding   []float32
	SessionDate time.Time
	CreatedAt   time.Time
}

// ClientVector is one 1536-dim embedding for a single client-profile field.
type ClientVector struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	ClientID    uuid.UUID
	FieldName   string
	Embedding   []float32
	CreatedAt   time.Time
}

var SessionVectorFields = map[string]bool{
	"subjective": true, "objective": true, "assessment": true, "plan": true,
}

var ClientVectorFields = map[string]bool{
	"medical_history": true, "notes": true,
}

const EmbeddingDimension = 1536

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxRefunded  TransactionStatus = "refunded"
	TxCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether a transaction in this status can never
// transition again (spec.md §5 ordering contract 3).
func (s TransactionStatus) IsTerminal() bool {
	return s == TxCompleted || s == TxRefunded || s == TxCancelled
}

type PaymentTransaction struct {
	ID                    uuid.UUID
	WorkspaceID           uuid.UUID
	AppointmentID         *uuid.UUID
	BaseAmount            float64
	VATAmount             float64
	TotalAmount           float64
	Currency              string
	PaymentMethod         string
	Status                TransactionStatus
	Provider              string
	ProviderTransactionID string
	ProviderPaymentLink   string
	ReceiptNumber         *int64
	CreatedAt             time.Time
	CompletedAt           *time.Time
	FailedAt              *time.Time
	RefundedAt            *time.Time
	FailureReason         string
	ProviderMetadata      map[string]any
}

type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditRead   AuditAction = "read"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

type AuditEvent struct {
	ID           uuid.UUID
	ActorUserID  *uuid.UUID
	WorkspaceID  uuid.UUID
	Action       AuditAction
	ResourceType string
	ResourceID   *uuid.UUID
	Metadata     map[string]any
	IPAddress    string
	CreatedAt    time.Time
}

// Attachment is a session's metadata row pointing at a blob in
// external object storage. ObjectKey is opaque to every caller but
// internal/attachment, which minted it; FileName is encrypted at rest
// like the other PHI-adjacent fields since a patient's uploaded file
// name can itself reveal clinical information.
type Attachment struct {
	ID               uuid.UUID
	WorkspaceID      uuid.UUID
	SessionID        uuid.UUID
	ObjectKey        string
	FileName         string
	ContentType      string
	SizeBytes        int64
	UploadedByUserID uuid.UUID
	CreatedAt        time.Time
}
