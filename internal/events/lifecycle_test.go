package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		body    string
		want    LifecycleEvent
		wantErr error
	}{
		{
			name: "instantiate yaml",
			key:  "instantiate",
			body: `
_id: op-1
nsInstanceId: ns-1
operationParams:
  nsName: demo
  nsInstanceId: ns-1
  vimAccountId: vim-1
  nsDescription: edge service
`,
			want: InstantiateRequest{NsInstanceID: "ns-1", Name: "demo", Description: "edge service", VimAccountID: "vim-1"},
		},
		{
			name: "instantiate default description",
			key:  "instantiate",
			body: `{"operationParams":{"nsName":"demo","nsInstanceId":"ns-1","vimAccountId":"vim-1"}}`,
			want: InstantiateRequest{NsInstanceID: "ns-1", Name: "demo", Description: DefaultDescription, VimAccountID: "vim-1"},
		},
		{
			name: "instantiate falls back to top level id",
			key:  "instantiate",
			body: `{"nsInstanceId":"ns-2","operationParams":{"nsName":"demo"}}`,
			want: InstantiateRequest{NsInstanceID: "ns-2", Name: "demo", Description: DefaultDescription},
		},
		{
			name:    "instantiate without params",
			key:     "instantiate",
			body:    `{"nsInstanceId":"ns-1"}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "instantiate without name",
			key:     "instantiate",
			body:    `{"operationParams":{"nsInstanceId":"ns-1"}}`,
			wantErr: ErrMalformed,
		},
		{
			name: "terminate",
			key:  "terminate",
			body: "nsInstanceId: ns-1\noperationParams: {autoremove: true}\n",
			want: TerminateRequest{NsInstanceID: "ns-1"},
		},
		{
			name: "scale out request",
			key:  "scale",
			body: `{"nsInstanceId":"ns-1","operationParams":{"scaleVnfData":{"scaleVnfType":"SCALE_OUT"}}}`,
			want: ScaleRequest{NsInstanceID: "ns-1", Direction: ScaleOut},
		},
		{
			name:    "scale without direction",
			key:     "scale",
			body:    `{"nsInstanceId":"ns-1"}`,
			wantErr: ErrMalformed,
		},
		{
			name: "instantiated completed",
			key:  "instantiated",
			body: "nsr_id: ns-1\nnslcmop_id: op-1\noperationState: COMPLETED\n",
			want: InstantiateResult{NsrID: "ns-1", State: StateCompleted},
		},
		{
			name: "terminated failed",
			key:  "terminated",
			body: `{"nsr_id":"ns-1","operationState":"FAILED"}`,
			want: TerminateResult{NsrID: "ns-1", State: StateFailed},
		},
		{
			name: "scaled without params",
			key:  "scaled",
			body: `{"nsr_id":"ns-1","operationState":"COMPLETED"}`,
			want: ScaleResult{NsrID: "ns-1", State: StateCompleted},
		},
		{
			name: "scaled with params",
			key:  "scaled",
			body: `{"nsr_id":"ns-1","operationState":"COMPLETED","operationParams":{"scaleVnfData":{"scaleVnfType":"SCALE_IN"}}}`,
			want: ScaleResult{NsrID: "ns-1", State: StateCompleted, Direction: ScaleIn},
		},
		{
			name:    "result without nsr id",
			key:     "instantiated",
			body:    `{"operationState":"COMPLETED"}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "not a mapping",
			key:     "terminated",
			body:    `- a`,
			wantErr: ErrMalformed,
		},
		{
			name:    "unsupported key",
			key:     "action",
			body:    `{}`,
			wantErr: ErrUnsupportedOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLifecycle(tt.key, []byte(tt.body))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, Operation(tt.key), got.Operation())
		})
	}
}

func TestParseTelemetry(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    TelemetrySample
		wantErr bool
	}{
		{
			name: "numeric value",
			body: `{"metric":{"name":"cpu_util","value":12.5,"unit":"%"},"mano":{"vdu":{"id":"vm-a"},"ns":{"id":"ns-1"}}}`,
			want: TelemetrySample{MetricName: "cpu_util", Value: 12.5, VduID: "vm-a"},
		},
		{
			name: "string value",
			body: `{"metric":{"name":"memory","value":"512"},"mano":{"vdu":{"id":"vm-b"}}}`,
			want: TelemetrySample{MetricName: "memory", Value: 512, VduID: "vm-b"},
		},
		{name: "no metric", body: `{"mano":{"vdu":{"id":"vm-a"}}}`, wantErr: true},
		{name: "no vdu", body: `{"metric":{"name":"cpu_util","value":1}}`, wantErr: true},
		{name: "missing value", body: `{"metric":{"name":"cpu_util"},"mano":{"vdu":{"id":"vm-a"}}}`, wantErr: true},
		{name: "bad value", body: `{"metric":{"name":"cpu_util","value":"high"},"mano":{"vdu":{"id":"vm-a"}}}`, wantErr: true},
		{name: "not json", body: `metric: cpu`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTelemetry([]byte(tt.body))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
