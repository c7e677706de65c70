package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// ServiceName 健康检查中登记的服务名
const ServiceName = "groupchat"

// Server 对内的 gRPC 服务, 目前只提供标准健康检查
type Server struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	address  string
	log      *logger.Logger
}

// NewServer listens on address and registers the grpc.health.v1 service.
//
// Parameters:
//   - address: listen address, ":0" picks a free port
//   - log: logger for the interceptors
//
// Returns:
//   - *Server: server ready to Start
//   - error: listen failure
func NewServer(address string, log *logger.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.Named("grpc")

	s := &Server{
		health:   health.NewServer(),
		listener: listener,
		address:  listener.Addr().String(),
		log:      log,
	}
	s.server = grpc.NewServer(
		grpc.UnaryInterceptor(s.unaryLoggingInterceptor),   // 一元 RPC 日志拦截器
		grpc.StreamInterceptor(s.streamLoggingInterceptor), // 流式 RPC 日志拦截器
	)
	healthpb.RegisterHealthServer(s.server, s.health)
	s.SetServing(true)
	return s, nil
}

func (s *Server) unaryLoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	start := time.Now()
	resp, err = handler(ctx, req)
	s.log.Debug("gRPC call",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.String("code", codeOf(err).String()),
	)
	return resp, err
}

func (s *Server) streamLoggingInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	s.log.Debug("gRPC stream call",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.String("code", codeOf(err).String()),
	)
	return err
}

func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

// SetServing 切换健康状态, 关闭前先置为 NOT_SERVING
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func (s *Server) Start() error {
	s.log.Info("starting gRPC server", zap.String("address", s.address))
	return s.server.Serve(s.listener)
}

func (s *Server) Stop() {
	s.log.Info("stopping gRPC server")
	s.SetServing(false)
	s.server.GracefulStop()
}

// Address 实际监听地址
func (s *Server) Address() string {
	return s.address
}

// GetServer 获取底层 gRPC 服务器 (用于注册服务)
func (s *Server) GetServer() *grpc.Server {
	return s.server
}
