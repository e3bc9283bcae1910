package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/dealflow-backend/internal/adapter/presenter"
	"github.com/simaogato/dealflow-backend/internal/auth"
	"github.com/simaogato/dealflow-backend/internal/domain"
	"github.com/simaogato/dealflow-backend/internal/usecase/recalc"
	"github.com/simaogato/dealflow-backend/internal/usecase/summary"
)

// Server implements CommissionServiceServer
type Server struct {
	Orchestrator *recalc.Orchestrator
	Summary      *summary.Service
}

// NewServer creates a new gRPC server instance
func NewServer(orchestrator *recalc.Orchestrator, summaryService *summary.Service) *Server {
	return &Server{
		Orchestrator: orchestrator,
		Summary:      summaryService,
	}
}

// RecomputeForDealChange handles the RecomputeForDealChange RPC
func (s *Server) RecomputeForDealChange(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req presenter.RecomputeRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	dealID, err := presenter.ParseID("deal_id", req.DealID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	// No field list means the caller does not know what changed
	changed := domain.AllDealFields
	if len(req.ChangedFields) > 0 {
		changed, err = domain.ParseDealFields(req.ChangedFields)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "%v", err)
		}
	}

	result, err := s.Orchestrator.RecomputeForDealChange(ctx, dealID, changed)
	if err != nil {
		return nil, mapError(err)
	}
	return respond(presenter.FromResult(result))
}

// OverridePaymentAmount handles the OverridePaymentAmount RPC.
// The actor is the authenticated caller.
func (s *Server) OverridePaymentAmount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req presenter.OverrideRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	paymentID, err := presenter.ParseID("payment_id", req.PaymentID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	amount, err := presenter.ParseAmount(req.Amount)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	result, err := s.Orchestrator.OverridePaymentAmount(ctx, paymentID, amount, auth.ActorFrom(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return respond(presenter.FromResult(result))
}

// ClearPaymentOverride handles the ClearPaymentOverride RPC
func (s *Server) ClearPaymentOverride(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req presenter.ClearOverrideRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	paymentID, err := presenter.ParseID("payment_id", req.PaymentID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	result, err := s.Orchestrator.ClearPaymentOverride(ctx, paymentID)
	if err != nil {
		return nil, mapError(err)
	}
	return respond(presenter.FromResult(result))
}

// GetDealSummary handles the GetDealSummary RPC
func (s *Server) GetDealSummary(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req presenter.DealRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	dealID, err := presenter.ParseID("deal_id", req.DealID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	result, err := s.Summary.GetDealSummary(ctx, dealID)
	if err != nil {
		return nil, mapError(err)
	}
	return respond(presenter.FromSummary(result))
}

func respond(v interface{}) (*structpb.Struct, error) {
	out, err := encodeStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, domain.ErrInvalidPercentage),
		errors.Is(err, domain.ErrInvalidPaymentCount),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrMissingActor),
		errors.Is(err, domain.ErrInvalidInput):
		return status.Errorf(codes.InvalidArgument, "%s", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s", err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		return status.Errorf(codes.AlreadyExists, "%s", err.Error())
	case domain.IsRetryable(err):
		// Aborted tells clients the whole call may be retried
		return status.Errorf(codes.Aborted, "%s", err.Error())
	default:
		return status.Errorf(codes.Internal, "%s", err.Error())
	}
}
