package grpc_control

import (
	"context"
	"encoding/json"

	"trading-relay/src/helpers"
	"trading-relay/src/logger"
	"trading-relay/src/models"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Controller is the command surface the control service drives.
type Controller interface {
	Status() models.MStatus
	Toggle(ctx context.Context, command string) (bool, error)
	Settings() models.MSettings
	UpdateSettings(patch models.MSettingsPatch) (models.MSettings, error)
}

// SourceLister reports the running analytics sources.
type SourceLister interface {
	SourceNames() []string
}

// ControlService implements RelayControlServer on top of the gateway.
type ControlService struct {
	Controller Controller
	Sources    SourceLister
	Logger     *logger.Logger
}

func NewControlService(ctrl Controller, sources SourceLister, log *logger.Logger) *ControlService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ControlService{
		Controller: ctrl,
		Sources:    sources,
		Logger:     log,
	}
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.Controller.Status())
}

// -----------------------------------------------------------------------------

// Toggle expects {"command": "start" | "stop" | "panic"}.
func (s *ControlService) Toggle(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cmd := req.GetFields()["command"].GetStringValue()
	if cmd == "" {
		return nil, status.Error(codes.InvalidArgument, "command is required")
	}
	running, err := s.Controller.Toggle(ctx, cmd)
	if err != nil {
		s.Logger.Warning("gRPC: toggle %s failed: %v", cmd, err)
		return nil, statusError(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"success":   true,
		"isRunning": running,
	})
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetSettings(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.Controller.Settings())
}

// UpdateSettings takes the same camelCase fields as the REST endpoint.
func (s *ControlService) UpdateSettings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := json.Marshal(req.AsMap())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid settings: %v", err)
	}
	var patch models.MSettingsPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid settings: %v", err)
	}
	next, err := s.Controller.UpdateSettings(patch)
	if err != nil {
		return nil, statusError(err)
	}
	s.Logger.Info("gRPC: settings updated")
	return toStruct(next)
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListSources(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	names := []interface{}{}
	if s.Sources != nil {
		for _, n := range s.Sources.SourceNames() {
			names = append(names, n)
		}
	}
	return structpb.NewStruct(map[string]interface{}{"sources": names})
}

// -----------------------------------------------------------------------------

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}

// statusError maps a relay error onto a gRPC status.
func statusError(err error) error {
	var code codes.Code
	switch helpers.KindOf(err) {
	case helpers.KindValidation, helpers.KindDecode:
		code = codes.InvalidArgument
	case helpers.KindNotAuthorized, helpers.KindRiskRejected:
		code = codes.FailedPrecondition
	case helpers.KindPositionNotFound, helpers.KindAccountNotFound:
		code = codes.NotFound
	case helpers.KindTimeout:
		code = codes.DeadlineExceeded
	case helpers.KindLinkDown, helpers.KindNotConnected, helpers.KindTransport:
		code = codes.Unavailable
	case helpers.KindUpstream, helpers.KindAuthorization:
		code = codes.Aborted
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
