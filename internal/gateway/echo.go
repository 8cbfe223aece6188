package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/services"
	"github.com/rs/zerolog/log"
)

// echoTimeoutSeconds bounds the association inside the SDK
const echoTimeoutSeconds = 10

// DefaultCallingAETitle is used when an endpoint has no calling AE of its own
const DefaultCallingAETitle = "RIS_WORKFLOW"

// EchoVerifier verifies endpoints with a C-ECHO through the DICOM SDK
type EchoVerifier struct {
	timeout      time.Duration
	destinations *destinationFactory
	echo         func(ctx context.Context, ep Endpoint) error
}

// NewEchoVerifier creates a verifier; timeout bounds the whole check
func NewEchoVerifier(timeout time.Duration) *EchoVerifier {
	if timeout <= 0 {
		timeout = echoTimeoutSeconds * time.Second
	}
	v := &EchoVerifier{
		timeout:      timeout,
		destinations: newDestinationFactory(),
	}
	v.echo = v.sdkEcho
	return v
}

// Verify runs a C-ECHO against endpoint. An unreachable endpoint is reported in the
// result; the error is set as well so callers can tell it apart from a successful check.
func (v *EchoVerifier) Verify(ctx context.Context, endpoint Endpoint) (VerifyResult, error) {
	if endpoint.CallingAETitle == "" {
		endpoint.CallingAETitle = DefaultCallingAETitle
	}
	result := VerifyResult{Endpoint: endpoint.String()}

	if endpoint.CalledAETitle == "" || endpoint.Host == "" || endpoint.Port <= 0 {
		err := fmt.Errorf("incomplete endpoint %s", endpoint)
		result.ErrorMessage = err.Error()
		return result, err
	}

	log.Debug().
		Str("endpoint", endpoint.String()).
		Str("calling_ae", endpoint.CallingAETitle).
		Msg("Testing DIMSE connection with C-ECHO")

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	err := v.echo(ctx, endpoint)
	result.ResponseTime = time.Since(start).Milliseconds()

	if err != nil {
		result.ErrorMessage = fmt.Sprintf("C-ECHO failed: %v", err)
		log.Warn().
			Err(err).
			Str("endpoint", endpoint.String()).
			Int64("response_time_ms", result.ResponseTime).
			Msg("DIMSE C-ECHO failed")
		return result, fmt.Errorf("%w: %s", ErrTransport, result.ErrorMessage)
	}

	result.IsConnected = true
	log.Info().
		Str("endpoint", endpoint.String()).
		Int64("response_time_ms", result.ResponseTime).
		Msg("DIMSE C-ECHO successful")
	return result, nil
}

func (v *EchoVerifier) sdkEcho(ctx context.Context, ep Endpoint) error {
	scu := services.NewSCU(v.destinations.get(ep))

	done := make(chan error, 1)
	go func() {
		done <- scu.EchoSCU(echoTimeoutSeconds)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
