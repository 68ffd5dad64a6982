// Package services implements the business logic of the license server.
// It sits between the HTTP handlers and the storage layer so the rules for
// checks, heartbeats and administration are centralized and testable.
//
// # Services
//
//	- LicenseService: answers /check and /heartbeat, applies bans, records
//	  connections, failed logins and attempts, and publishes activity to
//	  the admin feed
//	- AdminService: manages authorized keys and bans and serves the
//	  activity views
//	- HealthService: liveness, readiness and version information
//
// # Common Service Pattern
//
// Services take their collaborators through an Options struct and return
// a concrete type:
//
//	svc, err := services.NewLicenseService(services.LicenseOptions{
//	    Keys:     store,
//	    Bans:     store,
//	    Activity: store,
//	    GeoIP:    geoClient,
//	    Feed:     hub,
//	    Logger:   logger,
//	})
//
// # Error Handling
//
// Rejections are results, not errors: a wrong or banned key yields a
// CheckResponse. Errors are reserved for invalid input (VALIDATION
// AppErrors) and storage failures (STORAGE AppErrors), which the HTTP
// layer maps to problem details.
package services
