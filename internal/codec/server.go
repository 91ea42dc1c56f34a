package codec

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// #region service-desc
type classifierServer struct {
	impl model.Classifier
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "uap.v1.ClassifierService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: unaryHandler(PredictMethod, (*classifierServer).predict)},
		{MethodName: "InputGradient", Handler: unaryHandler(InputGradientMethod, (*classifierServer).inputGradient)},
	},
	Metadata: "uap/v1/classifier.proto",
}

// RegisterClassifierService serves a local classifier under the same method
// names RemoteClassifier calls.
func RegisterClassifierService(s grpc.ServiceRegistrar, impl model.Classifier) {
	s.RegisterService(&serviceDesc, &classifierServer{impl: impl})
}

type handlerFunc func(*classifierServer, context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)

func unaryHandler(method string, h handlerFunc) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*classifierServer)
		if interceptor == nil {
			return h(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return h(s, ctx, req.(*wrapperspb.BytesValue))
		})
	}
}

// #endregion service-desc

// #region handlers
func (s *classifierServer) predict(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	frames, err := DecodeFrames(in.GetValue())
	if err != nil || len(frames) != 1 {
		return nil, status.Errorf(codes.InvalidArgument, "predict: want 1 frame: %v", err)
	}
	logits, err := s.impl.Predict(ctx, frames[0])
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("predict: %v", err))
	}
	return wrapperspb.Bytes(EncodeFrames(logits)), nil
}

func (s *classifierServer) inputGradient(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	frames, err := DecodeFrames(in.GetValue())
	if err != nil || len(frames) != 2 {
		return nil, status.Errorf(codes.InvalidArgument, "input gradient: want 2 frames: %v", err)
	}
	grad, err := s.impl.InputGradient(ctx, frames[0], frames[1])
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("input gradient: %v", err))
	}
	return wrapperspb.Bytes(EncodeFrames(grad)), nil
}

// #endregion handlers
