package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
)

func successOutcome(token string) Outcome {
	now := time.Now()
	return Outcome{
		Kind:         OutcomeSuccess,
		GenerationID: "gen-" + token,
		Token:        token,
		Request:      videoRequest(),
		Artifacts:    []domain.Artifact{{StorageRef: "video/" + token + ".mp4", Format: "mp4"}},
		Attempts:     4,
		StartedAt:    now.Add(-time.Minute),
		FinishedAt:   now,
		Elapsed:      time.Minute,
	}
}

func TestReconcileSuccessOrderAndIdempotence(t *testing.T) {
	presenter := &recordingPresenter{}
	recorder := &fakeRecorder{}
	r := NewReconciler(presenter, recorder, infra.NopLogger(), nil)

	out := successOutcome("operations/1")
	require.True(t, r.Reconcile(context.Background(), out))
	require.False(t, r.Reconcile(context.Background(), out))

	require.Equal(t, []string{"SetInProgress", "ShowArtifacts"}, presenter.methods())
	require.Equal(t, false, presenter.calls[0].arg)
	require.Equal(t, 1, recorder.count())
	entry := recorder.entries[0]
	require.Equal(t, "operations/1", entry.JobToken)
	require.Equal(t, time.Minute, entry.Elapsed)
	require.Equal(t, "Veo 3", entry.Request.ModelLabel)
}

func TestReconcileHistoryFailureKeepsSuccess(t *testing.T) {
	presenter := &recordingPresenter{}
	recorder := &fakeRecorder{err: errors.New("insert failed")}
	r := NewReconciler(presenter, recorder, infra.NopLogger(), nil)

	require.True(t, r.Reconcile(context.Background(), successOutcome("operations/2")))
	require.Equal(t, []string{"SetInProgress", "ShowArtifacts"}, presenter.methods())
}

func TestReconcileErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		out  Outcome
		want string
	}{
		{
			name: "model not found is rewritten",
			out: Outcome{
				Kind:    OutcomeBackendError,
				Token:   "operations/3",
				Request: videoRequest(),
				Message: "Error: Error: model veo-3.0-generate-001 was not found for this project",
			},
			want: "Your project does not have access to Veo 3 yet. Request access to Veo 3, or choose another model and try again.",
		},
		{
			name: "plain backend error loses prefix",
			out:  Outcome{Kind: OutcomeBackendError, Token: "operations/4", Request: videoRequest(), Message: "Error: quota exceeded"},
			want: "quota exceeded",
		},
		{
			name: "timeout names attempts",
			out:  Outcome{Kind: OutcomeTimeout, Token: "operations/5", Request: videoRequest(), Attempts: 30},
			want: TimeoutMessage(30),
		},
		{
			name: "transport error is generic",
			out:  Outcome{Kind: OutcomeTransportError, Token: "operations/6", Request: videoRequest(), Err: errors.New("dial tcp: i/o timeout")},
			want: TransportMessage,
		},
		{
			name: "submission error without token",
			out:  Outcome{Kind: OutcomeSubmitError, GenerationID: "gen-7", Request: videoRequest(), Err: errors.New("NOT_FOUND: publisher model veo-3.0-generate-001")},
			want: "Your project does not have access to Veo 3 yet. Request access to Veo 3, or choose another model and try again.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			presenter := &recordingPresenter{}
			recorder := &fakeRecorder{}
			r := NewReconciler(presenter, recorder, infra.NopLogger(), nil)

			require.True(t, r.Reconcile(context.Background(), tt.out))
			require.Equal(t, []string{"SetInProgress", "ShowError"}, presenter.methods())
			require.Equal(t, tt.want, presenter.calls[1].arg)
			require.Zero(t, recorder.count())
		})
	}
}

func TestReconcileSeenSetIsBounded(t *testing.T) {
	r := NewReconciler(&recordingPresenter{}, nil, infra.NopLogger(), nil)
	r.capacity = 2

	require.True(t, r.Reconcile(context.Background(), successOutcome("a")))
	require.True(t, r.Reconcile(context.Background(), successOutcome("b")))
	require.False(t, r.Reconcile(context.Background(), successOutcome("b")))
	require.True(t, r.Reconcile(context.Background(), successOutcome("c")))
	require.Len(t, r.seen, 2)
	require.True(t, r.Reconcile(context.Background(), successOutcome("a")))
}
