package service

import (
	"github.com/spec-kit/clearance-service/internal/domain"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

func requireCaller(caller domain.Caller) error {
	if caller.UID == "" {
		return apperrors.NewUnauthenticated("authentication required")
	}
	return nil
}

func requireStaff(caller domain.Caller) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !caller.Role.IsStaff() {
		return apperrors.NewPermissionDenied("officer or admin role required")
	}
	return nil
}

func requireAdmin(caller domain.Caller) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if caller.Role != domain.RoleAdmin {
		return apperrors.NewPermissionDenied("admin role required")
	}
	return nil
}
