package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch/internal/pipeline"
)

func TestPushRequestTransformer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	testCases := []struct {
		name                  string
		payload               string
		expectError           bool
		expectedErrorContains string
	}{
		{
			name:        "Happy Path - User target",
			payload:     `{"user_id":"u1","event_id":"ev-1","message":{"title":"Hi"}}`,
			expectError: false,
		},
		{
			name:        "Happy Path - Device target",
			payload:     `{"device_id":"d1","event_id":"ev-1","message":{"title":"Hi"}}`,
			expectError: false,
		},
		{
			name:                  "Failure - Malformed JSON",
			payload:               "not-json",
			expectError:           true,
			expectedErrorContains: "failed to unmarshal push request",
		},
		{
			name:                  "Failure - Missing event ID",
			payload:               `{"user_id":"u1","message":{"title":"Hi"}}`,
			expectError:           true,
			expectedErrorContains: "no event_id",
		},
		{
			name:                  "Failure - No target",
			payload:               `{"event_id":"ev-1","message":{"title":"Hi"}}`,
			expectError:           true,
			expectedErrorContains: "exactly one of user_id or device_id",
		},
		{
			name:                  "Failure - Both targets",
			payload:               `{"user_id":"u1","device_id":"d1","event_id":"ev-1"}`,
			expectError:           true,
			expectedErrorContains: "exactly one of user_id or device_id",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-1", Payload: []byte(tc.payload)},
			}

			req, skip, err := pipeline.PushRequestTransformer(ctx, msg)

			if tc.expectError {
				require.Error(t, err)
				assert.True(t, skip)
				assert.Contains(t, err.Error(), tc.expectedErrorContains)
			} else {
				require.NoError(t, err)
				assert.False(t, skip)
				require.NotNil(t, req)
				assert.Equal(t, "ev-1", req.EventID)
			}
		})
	}
}
