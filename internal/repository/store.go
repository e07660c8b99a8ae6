package repository

import "context"

// Store bundles the repositories of one storage backend.
type Store struct {
	Users         UserRepository
	Devices       DeviceRepository
	Tokens        RefreshTokenRepository
	Cases         CaseRepository
	Attachments   AttachmentRepository
	Locations     LocationRepository
	Verifications VerificationRepository
	Audit         AuditRepository

	// Ping checks backend reachability for readiness probes.
	Ping func(ctx context.Context) error
	// Close releases backend resources.
	Close func()
}
