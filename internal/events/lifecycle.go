package events

import (
	"errors"
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"
)

var (
	// ErrMalformed is returned for a message that cannot be decoded into its schema.
	ErrMalformed = errors.New("malformed event")

	// ErrUnsupportedOperation is returned for lifecycle keys the reconciler does not act on.
	ErrUnsupportedOperation = errors.New("unsupported lifecycle operation")
)

// Operation is the key of a message on the OSM "ns" topic.
type Operation string

// Lifecycle operations.
const (
	OpInstantiate  Operation = "instantiate"
	OpInstantiated Operation = "instantiated"
	OpTerminate    Operation = "terminate"
	OpTerminated   Operation = "terminated"
	OpScale        Operation = "scale"
	OpScaled       Operation = "scaled"
)

// OperationState is the outcome carried by a result event.
type OperationState string

// Operation states.
const (
	StateCompleted OperationState = "COMPLETED"
	StateFailed    OperationState = "FAILED"
)

// ScaleDirection is the scaleVnfType of a scale operation.
type ScaleDirection string

// Scale directions.
const (
	ScaleOut ScaleDirection = "SCALE_OUT"
	ScaleIn  ScaleDirection = "SCALE_IN"
)

// LifecycleEvent is one decoded notification from the "ns" topic.
type LifecycleEvent interface {
	Operation() Operation
	NsID() string
}

// InstantiateRequest announces that an NS is being instantiated.
type InstantiateRequest struct {
	NsInstanceID string
	Name         string
	Description  string
	VimAccountID string
}

// TerminateRequest announces that an NS is being terminated.
type TerminateRequest struct {
	NsInstanceID string
}

// ScaleRequest announces a VNF scale operation.
type ScaleRequest struct {
	NsInstanceID string
	Direction    ScaleDirection
}

// InstantiateResult reports the outcome of an instantiation.
type InstantiateResult struct {
	NsrID string
	State OperationState
}

// TerminateResult reports the outcome of a termination.
type TerminateResult struct {
	NsrID string
	State OperationState
}

// ScaleResult reports the outcome of a scale operation. Direction is empty
// when the notification does not repeat the operation parameters.
type ScaleResult struct {
	NsrID     string
	State     OperationState
	Direction ScaleDirection
}

func (InstantiateRequest) Operation() Operation { return OpInstantiate }
func (TerminateRequest) Operation() Operation   { return OpTerminate }
func (ScaleRequest) Operation() Operation       { return OpScale }
func (InstantiateResult) Operation() Operation  { return OpInstantiated }
func (TerminateResult) Operation() Operation    { return OpTerminated }
func (ScaleResult) Operation() Operation        { return OpScaled }

func (e InstantiateRequest) NsID() string { return e.NsInstanceID }
func (e TerminateRequest) NsID() string   { return e.NsInstanceID }
func (e ScaleRequest) NsID() string       { return e.NsInstanceID }
func (e InstantiateResult) NsID() string  { return e.NsrID }
func (e TerminateResult) NsID() string    { return e.NsrID }
func (e ScaleResult) NsID() string        { return e.NsrID }

// lifecycleBody is the union of the fields OSM sends on the "ns" topic.
type lifecycleBody struct {
	NsInstanceID    string           `json:"nsInstanceId"`
	NsrID           string           `json:"nsr_id"`
	OperationState  string           `json:"operationState"`
	OperationParams *operationParams `json:"operationParams"`
}

type operationParams struct {
	NsInstanceID  string  `json:"nsInstanceId"`
	NsName        string  `json:"nsName"`
	NsDescription *string `json:"nsDescription"`
	VimAccountID  string  `json:"vimAccountId"`
	ScaleVnfData  *struct {
		ScaleVnfType string `json:"scaleVnfType"`
	} `json:"scaleVnfData"`
}

func (p *operationParams) direction() ScaleDirection {
	if p == nil || p.ScaleVnfData == nil {
		return ""
	}
	return ScaleDirection(p.ScaleVnfData.ScaleVnfType)
}

// DefaultDescription is used when an instantiate request carries no description.
const DefaultDescription = "Default Description"

// ParseLifecycle decodes a message of the "ns" topic. The body may be YAML or JSON.
func ParseLifecycle(key string, value []byte) (LifecycleEvent, error) {
	op := Operation(strings.TrimSpace(key))

	switch op {
	case OpInstantiate, OpInstantiated, OpTerminate, OpTerminated, OpScale, OpScaled:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, key)
	}

	var body lifecycleBody
	if err := yaml.Unmarshal(value, &body); err != nil {
		return nil, fmt.Errorf("%w: %s body: %w", ErrMalformed, op, err)
	}

	switch op {
	case OpInstantiate:
		p := body.OperationParams
		if p == nil {
			return nil, fmt.Errorf("%w: instantiate without operationParams", ErrMalformed)
		}
		id := p.NsInstanceID
		if id == "" {
			id = body.NsInstanceID
		}
		if id == "" || p.NsName == "" {
			return nil, fmt.Errorf("%w: instantiate requires nsInstanceId and nsName", ErrMalformed)
		}
		desc := DefaultDescription
		if p.NsDescription != nil {
			desc = *p.NsDescription
		}
		return InstantiateRequest{
			NsInstanceID: id,
			Name:         p.NsName,
			Description:  desc,
			VimAccountID: p.VimAccountID,
		}, nil

	case OpTerminate:
		if body.NsInstanceID == "" {
			return nil, fmt.Errorf("%w: terminate requires nsInstanceId", ErrMalformed)
		}
		return TerminateRequest{NsInstanceID: body.NsInstanceID}, nil

	case OpScale:
		if body.NsInstanceID == "" {
			return nil, fmt.Errorf("%w: scale requires nsInstanceId", ErrMalformed)
		}
		dir := body.OperationParams.direction()
		if dir == "" {
			return nil, fmt.Errorf("%w: scale requires operationParams.scaleVnfData.scaleVnfType", ErrMalformed)
		}
		return ScaleRequest{NsInstanceID: body.NsInstanceID, Direction: dir}, nil
	}

	// Result events.
	if body.NsrID == "" {
		return nil, fmt.Errorf("%w: %s requires nsr_id", ErrMalformed, op)
	}
	state := OperationState(body.OperationState)

	switch op {
	case OpInstantiated:
		return InstantiateResult{NsrID: body.NsrID, State: state}, nil
	case OpTerminated:
		return TerminateResult{NsrID: body.NsrID, State: state}, nil
	default:
		return ScaleResult{NsrID: body.NsrID, State: state, Direction: body.OperationParams.direction()}, nil
	}
}
