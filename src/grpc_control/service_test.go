package grpc_control

import (
	"context"
	"net"
	"testing"

	"trading-relay/src/helpers"
	"trading-relay/src/logger"
	"trading-relay/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeController struct {
	running    bool
	authorized bool
	settings   models.MSettings
}

func (f *fakeController) Status() models.MStatus {
	return models.MStatus{IsRunning: f.running, LinkState: "connected", Symbol: f.settings.ActiveSymbol}
}

func (f *fakeController) Toggle(_ context.Context, cmd string) (bool, error) {
	switch cmd {
	case "start":
		if !f.authorized {
			return false, helpers.Wrap(helpers.ErrNotAuthorized, "cannot start")
		}
		f.running = true
	case "stop", "panic":
		f.running = false
	default:
		return f.running, helpers.NewValidationError("unknown command %q", cmd)
	}
	return f.running, nil
}

func (f *fakeController) Settings() models.MSettings { return f.settings }

func (f *fakeController) UpdateSettings(p models.MSettingsPatch) (models.MSettings, error) {
	if p.IsEmpty() {
		return f.settings, helpers.NewValidationError("no settings supplied")
	}
	f.settings = p.Apply(f.settings)
	return f.settings, nil
}

type names []string

func (n names) SourceNames() []string { return n }

// -----------------------------------------------------------------------------

func dial(t *testing.T, ctrl Controller) *RelayControlClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(NewControlService(ctrl, names{"rabbit"}, nil), logger.NewNopLogger())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewRelayControlClient(conn)
}

func command(t *testing.T, cmd string) *structpb.Struct {
	s, err := structpb.NewStruct(map[string]interface{}{"command": cmd})
	require.NoError(t, err)
	return s
}

func TestGetStatusAndSources(t *testing.T) {
	client := dial(t, &fakeController{settings: models.DefaultSettings()})
	ctx := context.Background()

	st, err := client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "connected", st.Fields["linkState"].GetStringValue())
	assert.Equal(t, "R_100", st.Fields["symbol"].GetStringValue())
	assert.False(t, st.Fields["isRunning"].GetBoolValue())

	src, err := client.ListSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rabbit", src.Fields["sources"].GetListValue().Values[0].GetStringValue())
}

func TestToggleMapsErrors(t *testing.T) {
	ctrl := &fakeController{}
	client := dial(t, ctrl)
	ctx := context.Background()

	_, err := client.Toggle(ctx, command(t, "start"))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.Toggle(ctx, command(t, "jump"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Toggle(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	ctrl.authorized = true
	out, err := client.Toggle(ctx, command(t, "start"))
	require.NoError(t, err)
	assert.True(t, out.Fields["isRunning"].GetBoolValue())
}

func TestUpdateSettings(t *testing.T) {
	client := dial(t, &fakeController{settings: models.DefaultSettings()})
	ctx := context.Background()

	patch, err := structpb.NewStruct(map[string]interface{}{"gridSize": 20, "activeSymbol": "R_50"})
	require.NoError(t, err)
	out, err := client.UpdateSettings(ctx, patch)
	require.NoError(t, err)
	assert.EqualValues(t, 20, out.Fields["gridSize"].GetNumberValue())
	assert.Equal(t, "R_50", out.Fields["activeSymbol"].GetStringValue())

	got, err := client.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R_50", got.Fields["activeSymbol"].GetStringValue())

	_, err = client.UpdateSettings(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	bad, err := structpb.NewStruct(map[string]interface{}{"gridSize": "wide"})
	require.NoError(t, err)
	_, err = client.UpdateSettings(ctx, bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStatusErrorCodes(t *testing.T) {
	assert.Equal(t, codes.NotFound, status.Code(statusError(helpers.Wrap(helpers.ErrPositionNotFound, "x"))))
	assert.Equal(t, codes.Unavailable, status.Code(statusError(helpers.ErrLinkDown)))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(statusError(helpers.ErrRequestTimeout)))
	assert.Equal(t, codes.Aborted, status.Code(statusError(helpers.NewUpstreamError("X", "y"))))
	assert.Equal(t, codes.Internal, status.Code(statusError(assert.AnError)))
}
