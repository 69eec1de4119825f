package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMarshalWireFormat(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   string
	}{
		{
			name:   "process created",
			status: ProcessCreated(),
			want:   `{"type":"Process","content":{"status":"Created"}}`,
		},
		{
			name:   "process running",
			status: ProcessRunning(),
			want:   `{"type":"Process","content":{"status":"Running"}}`,
		},
		{
			name:   "process exited success",
			status: ProcessExited(ExitSuccess()),
			want:   `{"type":"Process","content":{"status":"Exited","content":{"exit_status":"Success"}}}`,
		},
		{
			name:   "process exited failure with code",
			status: ProcessExited(ExitFailure(3)),
			want:   `{"type":"Process","content":{"status":"Exited","content":{"exit_status":"Failure","content":{"code":3}}}}`,
		},
		{
			name:   "process exited failure without code",
			status: ProcessExited(ExitStatus{}),
			want:   `{"type":"Process","content":{"status":"Exited","content":{"exit_status":"Failure"}}}`,
		},
		{
			name:   "process canceled",
			status: ProcessCanceled(),
			want:   `{"type":"Process","content":{"status":"Canceled"}}`,
		},
		{
			name:   "process timeout",
			status: ProcessTimeout(),
			want:   `{"type":"Process","content":{"status":"Timeout"}}`,
		},
		{
			name:   "process failed on spawn",
			status: ProcessFailed(FailOnSpawn),
			want:   `{"type":"Process","content":{"status":"Failed","content":{"operation":"OnSpawn"}}}`,
		},
		{
			name:   "process failed after cancel on kill",
			status: ProcessFailed(FailAfterCancelOnKill),
			want:   `{"type":"Process","content":{"status":"Failed","content":{"operation":"AfterCancelOnKill"}}}`,
		},
		{
			name:   "download running",
			status: DownloadRunning(),
			want:   `{"type":"Download","content":{"status":"Running"}}`,
		},
		{
			name:   "download exited",
			status: DownloadExited(),
			want:   `{"type":"Download","content":{"status":"Exited"}}`,
		},
		{
			name:   "download failed with reason",
			status: DownloadFailed("download file: connection refused"),
			want:   `{"type":"Download","content":{"status":"Failed","content":{"reason":"download file: connection refused"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.status)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			var back Status
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.status, back)
		})
	}
}

func TestStatusUnmarshalRejectsUnknownType(t *testing.T) {
	var s Status
	err := json.Unmarshal([]byte(`{"type":"Banana","content":{"status":"Created"}}`), &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status type")
}

func TestPhaseTerminal(t *testing.T) {
	assert.False(t, PhaseCreated.Terminal())
	assert.False(t, PhaseRunning.Terminal())
	assert.True(t, PhaseExited.Terminal())
	assert.True(t, PhaseCanceled.Terminal())
	assert.True(t, PhaseTimeout.Terminal())
	assert.True(t, PhaseFailed.Terminal())
}

func TestStatusCellTerminalIsSticky(t *testing.T) {
	cell := NewStatusCell(ProcessCreated(), nil)
	assert.Equal(t, PhaseCreated, cell.Load().CurrentPhase())

	assert.True(t, cell.Store(ProcessRunning()))
	assert.True(t, cell.Store(ProcessCanceled()))

	// Late writes after a terminal status must not take effect.
	assert.False(t, cell.Store(ProcessExited(ExitSuccess())))
	assert.False(t, cell.Store(ProcessRunning()))
	assert.Equal(t, PhaseCanceled, cell.Load().CurrentPhase())
}

func TestStatusCellObserver(t *testing.T) {
	var seen []Phase
	cell := NewStatusCell(DownloadCreated(), func(s Status) {
		seen = append(seen, s.CurrentPhase())
	})

	cell.Store(DownloadRunning())
	cell.Store(DownloadExited())
	cell.Store(DownloadCanceled()) // rejected, observer not called

	assert.Equal(t, []Phase{PhaseRunning, PhaseExited}, seen)
}
