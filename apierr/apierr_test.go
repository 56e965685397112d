package apierr_test

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/InventoLabs/dealergate/apierr"
)

func TestFromStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   apierr.Kind
	}{
		{400, apierr.KindValidation},
		{409, apierr.KindValidation},
		{422, apierr.KindValidation},
		{401, apierr.KindAuthentication},
		{403, apierr.KindAuthentication},
		{404, apierr.KindNotFound},
		{429, apierr.KindRateLimit},
		{500, apierr.KindServerFault},
		{502, apierr.KindServerFault},
		{503, apierr.KindServerFault},
		{418, apierr.KindUnknown},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			err := apierr.FromStatus(tc.status, "upstream said no", apierr.Context{Op: "test"})
			require.Equal(t, tc.kind, err.Kind)
			require.Equal(t, tc.status, err.HTTPStatus)
			require.False(t, err.Timestamp.IsZero())
		})
	}
}

func TestNotFoundNamesResourceAndVehicle(t *testing.T) {
	err := apierr.FromStatus(404, "", apierr.Context{Resource: "vehicle gallery", VehicleID: "V123"})
	require.Contains(t, err.Message, "vehicle gallery")
	require.Contains(t, err.Message, "V123")
}

func TestRetryableIsPureFunctionOfKind(t *testing.T) {
	retryable := []apierr.Kind{apierr.KindNetwork, apierr.KindRateLimit, apierr.KindServerFault}
	terminal := []apierr.Kind{
		apierr.KindValidation, apierr.KindAuthentication, apierr.KindNotFound,
		apierr.KindInvalidResponse, apierr.KindUnknown,
	}

	for _, k := range retryable {
		err := &apierr.Error{Kind: k, Code: string(k), Message: "x"}
		require.True(t, apierr.Retryable(err), "kind %s should be retryable", k)
	}
	for _, k := range terminal {
		err := &apierr.Error{Kind: k, Code: string(k), Message: "x"}
		require.False(t, apierr.Retryable(err), "kind %s should be terminal", k)
	}

	require.False(t, apierr.Retryable(fmt.Errorf("unclassified")))
	require.False(t, apierr.Retryable(nil))
}

func TestClassifyIsIdempotent(t *testing.T) {
	original := apierr.FromStatus(503, "flaky upstream", apierr.Context{Op: "first"})
	reclassified := apierr.Classify(original, apierr.Context{Op: "second"})
	require.Same(t, original, reclassified)

	// Wrapping does not defeat the pass-through.
	wrapped := fmt.Errorf("outer: %w", original)
	require.Same(t, original, apierr.Classify(wrapped, apierr.Context{}))
}

func TestClassifyTransportFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"deadline", context.DeadlineExceeded},
		{"cancel", context.Canceled},
		{"refused", syscall.ECONNREFUSED},
		{"reset", syscall.ECONNRESET},
		{"timeout", &net.DNSError{Err: "lookup timed out", IsTimeout: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			classified := apierr.Classify(tc.err, apierr.Context{Op: "dial"})
			require.Equal(t, apierr.KindNetwork, classified.Kind)
			require.True(t, apierr.Retryable(classified))
		})
	}
}

func TestClassifyUnknownFallback(t *testing.T) {
	classified := apierr.Classify(fmt.Errorf("something odd"), apierr.Context{Op: "op"})
	require.Equal(t, apierr.KindUnknown, classified.Kind)
	require.False(t, apierr.Retryable(classified))
}

func TestErrorRendering(t *testing.T) {
	err := apierr.Validation("plate is malformed", apierr.Context{Op: "update_vehicle", Hint: "use the IT plate format"})
	rendered := err.Error()
	require.Contains(t, rendered, "VALIDATION")
	require.Contains(t, rendered, "plate is malformed")
	require.Contains(t, rendered, "use the IT plate format")
	require.NotContains(t, rendered, "goroutine") // no stack traces in user-visible output
}

func TestTimestampsAreUTC(t *testing.T) {
	err := apierr.RateLimit("slow down", apierr.Context{})
	require.Equal(t, time.UTC, err.Timestamp.Location())
}
