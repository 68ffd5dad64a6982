package http

import (
	"context"

	"github.com/ernyzasxash/clientt/internal/services"
	v1 "github.com/ernyzasxash/clientt/pkg/contracts/api/v1"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// LicenseService answers launcher requests
type LicenseService interface {
	Check(ctx context.Context, req services.ClientRequest) (domain.CheckResponse, error)
	Heartbeat(ctx context.Context, req services.ClientRequest) (domain.CheckResponse, error)
}

// AdminService manages keys, bans and activity views
type AdminService interface {
	AddKey(ctx context.Context, key string) (string, error)
	RemoveKey(ctx context.Context, key string) (string, error)
	ListKeys(ctx context.Context) ([]string, error)
	Ban(ctx context.Context, req v1.BanRequest) (string, error)
	Unban(ctx context.Context, banType domain.BanType, value string) (string, error)
	Bans(ctx context.Context) ([]domain.Ban, error)
	Connections(ctx context.Context) ([]v1.ConnectionView, error)
	FailedLogins(ctx context.Context) ([]domain.FailedLogin, error)
	Attempts(ctx context.Context, limit int) ([]domain.Attempt, error)
}

var (
	_ LicenseService = (*services.LicenseService)(nil)
	_ AdminService   = (*services.AdminService)(nil)
)
