// Package visualiser streams per-cycle fusion results to debugging clients
// over gRPC. This file implements the streaming service. The service
// descriptor is written by hand against the wire schema in frame_codec.go.
package visualiser

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/drivegate/internal/monitoring"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "drivegate.v1.Visualiser"

	// StreamMethod is the full method path of the result stream.
	StreamMethod = "/drivegate.v1.Visualiser/Stream"
)

// streamHost is the server contract the hand-written descriptor dispatches to.
type streamHost interface {
	Stream(req *StreamRequest, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*streamHost)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       streamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "drivegate/v1/visualiser.proto",
}

func streamHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(StreamRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(streamHost).Stream(req, stream)
}

// Server implements the Visualiser streaming service on top of a Publisher.
type Server struct {
	publisher *Publisher
}

// Ensure Server satisfies the descriptor's handler type.
var _ streamHost = (*Server)(nil)

// NewServer creates the gRPC service for the given publisher.
func NewServer(publisher *Publisher) *Server {
	return &Server{publisher: publisher}
}

// RegisterService registers the visualiser service with the gRPC server.
func RegisterService(grpcServer *grpc.Server, server *Server) {
	grpcServer.RegisterService(&serviceDesc, server)
}

// Stream sends every published cycle to the client until it disconnects or
// the publisher shuts down.
func (s *Server) Stream(req *StreamRequest, stream grpc.ServerStream) error {
	clientID := uuid.New().String()
	monitoring.Logf("[Visualiser] Client %s connected: camera=%q include_raw=%v",
		clientID, req.Camera, req.IncludeRaw)

	client := s.publisher.addClient(clientID, req)
	defer s.publisher.removeClient(clientID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return status.Error(codes.Unavailable, "visualiser shutting down")
		case frame := <-client.frameCh:
			if req.Camera != "" && frame.Camera != req.Camera {
				continue
			}
			out := frame
			if !req.IncludeRaw {
				out = frame.withoutRaw()
			}
			if err := stream.SendMsg(out); err != nil {
				monitoring.Logf("[Visualiser] Client %s send error: %v", clientID, err)
				return err
			}
		}
	}
}

// FrameStream is the client side of the result stream.
type FrameStream struct {
	stream grpc.ClientStream
}

// OpenStream subscribes to a visualiser server over an established
// connection. The connection must carry the frame codec, either through
// grpc.CallContentSubtype(CodecName) as a default call option or per call.
func OpenStream(ctx context.Context, conn *grpc.ClientConn, req *StreamRequest) (*FrameStream, error) {
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], StreamMethod,
		grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &FrameStream{stream: stream}, nil
}

// Recv blocks until the next frame arrives or the stream ends.
func (fs *FrameStream) Recv() (*ResultFrame, error) {
	frame := new(ResultFrame)
	if err := fs.stream.RecvMsg(frame); err != nil {
		return nil, err
	}
	return frame, nil
}
