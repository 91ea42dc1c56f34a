package codec

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// #region methods
// Full method names of the classifier service. Requests and responses are
// BytesValue messages carrying tensor frames.
const (
	PredictMethod       = "/uap.v1.ClassifierService/Predict"
	InputGradientMethod = "/uap.v1.ClassifierService/InputGradient"
)

// #endregion methods

// #region client-struct
// RemoteClassifier calls a classifier served over gRPC. It implements
// model.Classifier.
type RemoteClassifier struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewRemoteClassifier connects to the classifier gRPC server.
func NewRemoteClassifier(addr string) (*RemoteClassifier, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &RemoteClassifier{conn: conn, cc: conn}, nil
}

// NewRemoteClassifierWithConn wraps an existing connection. Close does not
// close it.
func NewRemoteClassifierWithConn(cc grpc.ClientConnInterface) *RemoteClassifier {
	return &RemoteClassifier{cc: cc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *RemoteClassifier) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region predict
// Predict returns the logits for a batch of images.
func (c *RemoteClassifier) Predict(ctx context.Context, images *mat.Dense) (*mat.Dense, error) {
	logits, err := c.call(ctx, PredictMethod, images)
	if err != nil {
		return nil, fmt.Errorf("predict rpc: %w", err)
	}
	ir, _ := images.Dims()
	if lr, _ := logits.Dims(); lr != ir {
		return nil, fmt.Errorf("predict rpc: %d logit rows for %d images", lr, ir)
	}
	return logits, nil
}

// #endregion predict

// #region input-gradient
// InputGradient returns gradLogits pulled back through the classifier to
// image space.
func (c *RemoteClassifier) InputGradient(ctx context.Context, images, gradLogits *mat.Dense) (*mat.Dense, error) {
	grad, err := c.call(ctx, InputGradientMethod, images, gradLogits)
	if err != nil {
		return nil, fmt.Errorf("input gradient rpc: %w", err)
	}
	ir, ic := images.Dims()
	if gr, gc := grad.Dims(); gr != ir || gc != ic {
		return nil, fmt.Errorf("input gradient rpc: got %dx%d, want %dx%d", gr, gc, ir, ic)
	}
	return grad, nil
}

// #endregion input-gradient

func (c *RemoteClassifier) call(ctx context.Context, method string, in ...*mat.Dense) (*mat.Dense, error) {
	resp := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, method, wrapperspb.Bytes(EncodeFrames(in...)), resp); err != nil {
		return nil, err
	}
	frames, err := DecodeFrames(resp.GetValue())
	if err != nil {
		return nil, err
	}
	if len(frames) != 1 {
		return nil, fmt.Errorf("want 1 frame, got %d", len(frames))
	}
	return frames[0], nil
}
