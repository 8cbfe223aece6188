package services

import (
	"context"

	"github.com/otcheredev/ris-modality-workflow/internal/gateway"
	"github.com/otcheredev/ris-modality-workflow/internal/repository"
)

// Verification targets of a worklist entry
const (
	VerifyWorklistTarget = "worklist"
	VerifyMppsTarget     = "mpps"
)

// VerifyWorklist sends a C-ECHO to the worklist or MPPS AE of a worklist entry. An
// endpoint that does not answer is reported in the result, not as an error.
func (m *LifecycleManager) VerifyWorklist(ctx context.Context, worklistID, target string) (*gateway.VerifyResult, error) {
	if target == "" {
		target = VerifyWorklistTarget
	}
	if target != VerifyWorklistTarget && target != VerifyMppsTarget {
		return nil, invalidInput("unknown verification target %q", target)
	}

	var endpoint gateway.Endpoint
	err := m.exclusive(ctx, func(ctx context.Context, store *repository.Store) error {
		worklist, err := loadWorklist(ctx, store, worklistID)
		if err != nil {
			return err
		}
		if target == VerifyMppsTarget {
			endpoint = gateway.MppsEndpoint(worklist)
		} else {
			endpoint = gateway.WorklistEndpoint(worklist)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.verify(ctx, endpoint)
}

// VerifyDestination sends a C-ECHO to a storage destination
func (m *LifecycleManager) VerifyDestination(ctx context.Context, destinationID string) (*gateway.VerifyResult, error) {
	var endpoint gateway.Endpoint
	err := m.exclusive(ctx, func(ctx context.Context, store *repository.Store) error {
		destination, err := loadDestination(ctx, store, destinationID)
		if err != nil {
			return err
		}
		endpoint = gateway.DestinationEndpoint(destination)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.verify(ctx, endpoint)
}

func (m *LifecycleManager) verify(ctx context.Context, endpoint gateway.Endpoint) (*gateway.VerifyResult, error) {
	if m.verifier == nil {
		return nil, &Error{Kind: KindGateway, Message: "no endpoint verifier configured"}
	}
	// the failure detail is carried by the result
	result, _ := m.verifier.Verify(ctx, endpoint)
	return &result, nil
}
