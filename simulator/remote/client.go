package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client 远程仿真器客户端，实现entity.ISimulator
type Client struct {
	step            *connect.Client[emptypb.Empty, ClockResponse]
	finished        *connect.Client[emptypb.Empty, ClockResponse]
	vehicleIDs      *connect.Client[emptypb.Empty, IDsResponse]
	laneVehicleIDs  *connect.Client[IDRequest, IDsResponse]
	edgeVehicleIDs  *connect.Client[IDRequest, IDsResponse]
	vehicle         *connect.Client[IDRequest, entity.VehicleState]
	setVehicleClass *connect.Client[SetVehicleClassRequest, emptypb.Empty]
	setLaneAllowed  *connect.Client[SetLaneAllowedRequest, emptypb.Empty]
	close           *connect.Client[emptypb.Empty, emptypb.Empty]
	info            *connect.Client[emptypb.Empty, Info]

	timeout time.Duration // 非推进接口的调用超时
	t       float64       // 最近一次得到的仿真时间
}

var _ entity.ISimulator = (*Client)(nil)

// NewClient 创建客户端
// 参数：httpClient-HTTP客户端（h2c需要支持HTTP/2的Transport），baseURL-服务地址，timeout-查询接口超时
func NewClient(httpClient connect.HTTPClient, baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opt := connect.WithCodec(jsonCodec{})
	return &Client{
		step:            connect.NewClient[emptypb.Empty, ClockResponse](httpClient, baseURL+StepProcedure, opt),
		finished:        connect.NewClient[emptypb.Empty, ClockResponse](httpClient, baseURL+FinishedProcedure, opt),
		vehicleIDs:      connect.NewClient[emptypb.Empty, IDsResponse](httpClient, baseURL+VehicleIDsProcedure, opt),
		laneVehicleIDs:  connect.NewClient[IDRequest, IDsResponse](httpClient, baseURL+LaneVehicleIDsProcedure, opt),
		edgeVehicleIDs:  connect.NewClient[IDRequest, IDsResponse](httpClient, baseURL+EdgeVehicleIDsProcedure, opt),
		vehicle:         connect.NewClient[IDRequest, entity.VehicleState](httpClient, baseURL+VehicleProcedure, opt),
		setVehicleClass: connect.NewClient[SetVehicleClassRequest, emptypb.Empty](httpClient, baseURL+SetVehicleClassProcedure, opt),
		setLaneAllowed:  connect.NewClient[SetLaneAllowedRequest, emptypb.Empty](httpClient, baseURL+SetLaneAllowedProcedure, opt),
		close:           connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+CloseProcedure, opt),
		info:            connect.NewClient[emptypb.Empty, Info](httpClient, baseURL+InfoProcedure, opt),
		timeout:         timeout,
	}
}

// Dial 以h2c方式连接服务
func Dial(addr string, timeout time.Duration) *Client {
	return NewClient(newH2CClient(), "http://"+addr, timeout)
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.Background(), func() {}
	}
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *Client) Step(ctx context.Context) error {
	res, err := c.step.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return fmt.Errorf("remote step: %w", err)
	}
	c.t = res.Msg.T
	return nil
}

func (c *Client) Finished() (bool, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	res, err := c.finished.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return false, fmt.Errorf("remote finished: %w", err)
	}
	c.t = res.Msg.T
	return res.Msg.Finished, nil
}

// Time 最近一次Step或Finished返回的仿真时间
func (c *Client) Time() float64 {
	return c.t
}

func (c *Client) VehicleIDs() ([]string, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	res, err := c.vehicleIDs.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, fmt.Errorf("remote vehicle ids: %w", err)
	}
	return res.Msg.IDs, nil
}

func (c *Client) LaneVehicleIDs(laneID string) ([]string, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	res, err := c.laneVehicleIDs.CallUnary(ctx, connect.NewRequest(&IDRequest{ID: laneID}))
	if err != nil {
		return nil, fmt.Errorf("remote lane %s: %w", laneID, err)
	}
	return res.Msg.IDs, nil
}

func (c *Client) EdgeVehicleIDs(edgeID string) ([]string, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	res, err := c.edgeVehicleIDs.CallUnary(ctx, connect.NewRequest(&IDRequest{ID: edgeID}))
	if err != nil {
		return nil, fmt.Errorf("remote edge %s: %w", edgeID, err)
	}
	return res.Msg.IDs, nil
}

func (c *Client) Vehicle(id string) (entity.VehicleState, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	res, err := c.vehicle.CallUnary(ctx, connect.NewRequest(&IDRequest{ID: id}))
	if err != nil {
		return entity.VehicleState{}, fmt.Errorf("remote vehicle %s: %w", id, err)
	}
	return *res.Msg, nil
}

func (c *Client) SetVehicleClass(id string, class entity.VehicleClass) error {
	ctx, cancel := c.ctx()
	defer cancel()
	_, err := c.setVehicleClass.CallUnary(ctx, connect.NewRequest(&SetVehicleClassRequest{ID: id, Class: class}))
	if err != nil {
		return fmt.Errorf("remote set vehicle %s class: %w", id, err)
	}
	return nil
}

func (c *Client) SetLaneAllowed(laneID string, classes []entity.VehicleClass) error {
	ctx, cancel := c.ctx()
	defer cancel()
	_, err := c.setLaneAllowed.CallUnary(ctx, connect.NewRequest(&SetLaneAllowedRequest{LaneID: laneID, Classes: classes}))
	if err != nil {
		return fmt.Errorf("remote set lane %s allowed: %w", laneID, err)
	}
	return nil
}

// Info 服务所运行的车流方案标识
func (c *Client) Info() (Info, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	res, err := c.info.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return Info{}, fmt.Errorf("remote info: %w", err)
	}
	return *res.Msg, nil
}

// Close 关闭服务端的仿真器
func (c *Client) Close() error {
	ctx, cancel := c.ctx()
	defer cancel()
	if _, err := c.close.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{})); err != nil {
		return fmt.Errorf("remote close: %w", err)
	}
	return nil
}

var _ connect.HTTPClient = (*http.Client)(nil)
