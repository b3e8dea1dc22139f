package tracker

import "github.com/starlink-awaken/omo-quota/pkg/model"

// Re-export types from model package for convenience.
type (
	TrackerDocument = model.TrackerDocument
	ProviderStatus  = model.ProviderStatus
	MalformedEntry  = model.MalformedEntry
)
