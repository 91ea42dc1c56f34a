package codec

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// #region mock
type mockConn struct {
	grpc.ClientConnInterface

	method string
	resp   []byte
	err    error
}

func (m *mockConn) Invoke(_ context.Context, method string, _ any, reply any, _ ...grpc.CallOption) error {
	m.method = method
	if m.err != nil {
		return m.err
	}
	reply.(*wrapperspb.BytesValue).Value = m.resp
	return nil
}

func linear(t *testing.T) *model.LinearClassifier {
	t.Helper()
	w := mat.NewDense(2, 3, []float64{
		1, 0, -1,
		0.5, 2, 0,
	})
	c, err := model.NewLinearClassifier(w, []float64{0.25, -0.5})
	require.NoError(t, err)
	return c
}

// #endregion mock

// #region frame-tests
func TestFramesRoundTrip(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, -2, 0.5, 3})
	b := mat.NewDense(1, 3, []float64{0, 0.25, -8})

	frames, err := DecodeFrames(EncodeFrames(a, b))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.True(t, mat.Equal(a, frames[0]))
	assert.True(t, mat.Equal(b, frames[1]))
}

func TestDecodeFramesTruncated(t *testing.T) {
	buf := EncodeFrames(mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	_, err := DecodeFrames(buf[:len(buf)-1])
	assert.Error(t, err)
	_, err = DecodeFrames(buf[:5])
	assert.Error(t, err)
}

// #endregion frame-tests

// #region client-tests
func TestPredictWrapsRPCError(t *testing.T) {
	conn := &mockConn{err: errors.New("unavailable")}
	c := NewRemoteClassifierWithConn(conn)

	_, err := c.Predict(context.Background(), mat.NewDense(1, 3, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, conn.err)
	assert.Equal(t, PredictMethod, conn.method)
}

func TestPredictRejectsRowMismatch(t *testing.T) {
	conn := &mockConn{resp: EncodeFrames(mat.NewDense(1, 2, []float64{0, 1}))}
	c := NewRemoteClassifierWithConn(conn)

	_, err := c.Predict(context.Background(), mat.NewDense(2, 3, nil))
	assert.Error(t, err)
}

func TestInputGradientRejectsShapeMismatch(t *testing.T) {
	conn := &mockConn{resp: EncodeFrames(mat.NewDense(1, 2, []float64{0, 1}))}
	c := NewRemoteClassifierWithConn(conn)

	_, err := c.InputGradient(context.Background(), mat.NewDense(1, 3, nil), mat.NewDense(1, 2, nil))
	assert.Error(t, err)
	assert.Equal(t, InputGradientMethod, conn.method)
}

func TestCloseWithoutOwnedConn(t *testing.T) {
	c := NewRemoteClassifierWithConn(&mockConn{})
	assert.NoError(t, c.Close())
}

// #endregion client-tests

// #region bufconn-tests
func TestRemoteMatchesLocalOverGRPC(t *testing.T) {
	local := linear(t)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterClassifierService(srv, local)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	remote := NewRemoteClassifierWithConn(conn)
	ctx := context.Background()
	images := mat.NewDense(2, 3, []float64{
		0.5, -1, 0.25,
		1, 1, 1,
	})

	want, err := local.Predict(ctx, images)
	require.NoError(t, err)
	got, err := remote.Predict(ctx, images)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-6))

	gradLogits := mat.NewDense(2, 2, []float64{1, -1, 0, 0.5})
	wantGrad, err := local.InputGradient(ctx, images, gradLogits)
	require.NoError(t, err)
	gotGrad, err := remote.InputGradient(ctx, images, gradLogits)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(wantGrad, gotGrad, 1e-6))
}

// #endregion bufconn-tests
