package remote

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"

	"connectrpc.com/connect"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/protobuf/types/known/emptypb"
)

var ErrClosed = errors.New("remote: simulator closed")

// Server 把仿真器暴露为connect服务
// 说明：查询接口持读锁并发执行，推进与修改接口持写锁
type Server struct {
	sim    entity.ISimulator
	info   Info
	mtx    *xsync.RBMutex
	closed atomic.Bool
}

// NewServer 创建服务，info为仿真器所运行的车流方案标识
func NewServer(sim entity.ISimulator, info Info) *Server {
	return &Server{sim: sim, info: info, mtx: xsync.NewRBMutex()}
}

func read[Req, Res any](s *Server, fn func(*Req) (*Res, error)) func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error) {
	return func(_ context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		if s.closed.Load() {
			return nil, connect.NewError(connect.CodeFailedPrecondition, ErrClosed)
		}
		t := s.mtx.RLock()
		defer s.mtx.RUnlock(t)
		res, err := fn(req.Msg)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return connect.NewResponse(res), nil
	}
}

func write[Req, Res any](s *Server, fn func(context.Context, *Req) (*Res, error)) func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error) {
	return func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		if s.closed.Load() {
			return nil, connect.NewError(connect.CodeFailedPrecondition, ErrClosed)
		}
		s.mtx.Lock()
		defer s.mtx.Unlock()
		res, err := fn(ctx, req.Msg)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		return connect.NewResponse(res), nil
	}
}

func (s *Server) clock() (*ClockResponse, error) {
	done, err := s.sim.Finished()
	if err != nil {
		return nil, err
	}
	return &ClockResponse{T: s.sim.Time(), Finished: done}, nil
}

// Handler 服务路径前缀与对应的http.Handler
func (s *Server) Handler() (string, http.Handler) {
	opt := connect.WithCodec(jsonCodec{})
	mux := http.NewServeMux()
	mux.Handle(StepProcedure, connect.NewUnaryHandler(StepProcedure,
		write(s, func(ctx context.Context, _ *emptypb.Empty) (*ClockResponse, error) {
			if err := s.sim.Step(ctx); err != nil {
				return nil, err
			}
			return s.clock()
		}), opt))
	mux.Handle(FinishedProcedure, connect.NewUnaryHandler(FinishedProcedure,
		read(s, func(*emptypb.Empty) (*ClockResponse, error) {
			return s.clock()
		}), opt))
	mux.Handle(VehicleIDsProcedure, connect.NewUnaryHandler(VehicleIDsProcedure,
		read(s, func(*emptypb.Empty) (*IDsResponse, error) {
			ids, err := s.sim.VehicleIDs()
			return &IDsResponse{IDs: ids}, err
		}), opt))
	mux.Handle(LaneVehicleIDsProcedure, connect.NewUnaryHandler(LaneVehicleIDsProcedure,
		read(s, func(req *IDRequest) (*IDsResponse, error) {
			ids, err := s.sim.LaneVehicleIDs(req.ID)
			return &IDsResponse{IDs: ids}, err
		}), opt))
	mux.Handle(EdgeVehicleIDsProcedure, connect.NewUnaryHandler(EdgeVehicleIDsProcedure,
		read(s, func(req *IDRequest) (*IDsResponse, error) {
			ids, err := s.sim.EdgeVehicleIDs(req.ID)
			return &IDsResponse{IDs: ids}, err
		}), opt))
	mux.Handle(VehicleProcedure, connect.NewUnaryHandler(VehicleProcedure,
		read(s, func(req *IDRequest) (*entity.VehicleState, error) {
			v, err := s.sim.Vehicle(req.ID)
			return &v, err
		}), opt))
	mux.Handle(SetVehicleClassProcedure, connect.NewUnaryHandler(SetVehicleClassProcedure,
		write(s, func(_ context.Context, req *SetVehicleClassRequest) (*emptypb.Empty, error) {
			return &emptypb.Empty{}, s.sim.SetVehicleClass(req.ID, req.Class)
		}), opt))
	mux.Handle(SetLaneAllowedProcedure, connect.NewUnaryHandler(SetLaneAllowedProcedure,
		write(s, func(_ context.Context, req *SetLaneAllowedRequest) (*emptypb.Empty, error) {
			return &emptypb.Empty{}, s.sim.SetLaneAllowed(req.LaneID, req.Classes)
		}), opt))
	mux.Handle(InfoProcedure, connect.NewUnaryHandler(InfoProcedure,
		read(s, func(*emptypb.Empty) (*Info, error) {
			info := s.info
			return &info, nil
		}), opt))
	mux.Handle(CloseProcedure, connect.NewUnaryHandler(CloseProcedure,
		write(s, func(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
			if !s.closed.CompareAndSwap(false, true) {
				return &emptypb.Empty{}, nil
			}
			return &emptypb.Empty{}, s.sim.Close()
		}), opt))
	return "/" + ServiceName + "/", mux
}

// Serve 在lis上提供服务（HTTP/2 w.o. TLS），ctx结束时关闭
func Serve(ctx context.Context, lis net.Listener, sim entity.ISimulator, info Info) error {
	mux := http.NewServeMux()
	mux.Handle(NewServer(sim, info).Handler())
	s := &http.Server{
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	log.Infof("simulator service (%s av=%g seed=%d) listening at %v", info.Demand, info.AvRate, info.Seed, lis.Addr())
	if err := s.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
