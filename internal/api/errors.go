package api

import (
	"errors"
	"net/http"

	"zapis/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorKind groups domain errors by how a transport reports them.
type errorKind int

const (
	kindInternal errorKind = iota
	kindNotFound
	kindInvalid
	kindConflict
	kindPrecondition
)

func classify(err error) errorKind {
	switch {
	case errors.Is(err, domain.ErrShopNotFound),
		errors.Is(err, domain.ErrServiceNotFound),
		errors.Is(err, domain.ErrAppointmentNotFound):
		return kindNotFound
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidClientDetails):
		return kindInvalid
	case errors.Is(err, domain.ErrSlotNoLongerAvailable),
		errors.Is(err, domain.ErrConcurrentModification):
		return kindConflict
	case errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrShopClosedOnDate),
		errors.Is(err, domain.ErrSlotOutsideWorkingHours),
		errors.Is(err, domain.ErrStaffNotEligibleForService),
		errors.Is(err, domain.ErrBookingQuotaExceeded):
		return kindPrecondition
	default:
		return kindInternal
	}
}

func httpStatus(err error) int {
	switch classify(err) {
	case kindNotFound:
		return http.StatusNotFound
	case kindInvalid:
		return http.StatusBadRequest
	case kindConflict:
		return http.StatusConflict
	case kindPrecondition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// grpcError converts a service error into a status error. Internal causes are not exposed.
func grpcError(err error) error {
	switch classify(err) {
	case kindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case kindInvalid:
		return status.Error(codes.InvalidArgument, err.Error())
	case kindConflict:
		return status.Error(codes.Aborted, err.Error())
	case kindPrecondition:
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
