package broker

import (
	"context"

	gogrpc "google.golang.org/grpc"
)

// ServiceName is the fully-qualified broker consumer service.
const ServiceName = "taskworker.broker.v1.ConsumerService"

const (
	fetchTaskMethod     = "/" + ServiceName + "/FetchTask"
	setTaskStatusMethod = "/" + ServiceName + "/SetTaskStatus"
	produceTaskMethod   = "/" + ServiceName + "/ProduceTask"
)

// ConsumerServer is the broker side of the consumer service.
type ConsumerServer interface {
	FetchTask(context.Context, *FetchTaskRequest) (*FetchTaskResponse, error)
	SetTaskStatus(context.Context, *SetTaskStatusRequest) (*SetTaskStatusResponse, error)
	ProduceTask(context.Context, *ProduceTaskRequest) (*ProduceTaskResponse, error)
}

// RegisterConsumerServer registers srv on s. Requests must use the CBOR
// content-subtype.
func RegisterConsumerServer(s gogrpc.ServiceRegistrar, srv ConsumerServer) {
	s.RegisterService(&consumerServiceDesc, srv)
}

var consumerServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConsumerServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "FetchTask", Handler: fetchTaskHandler},
		{MethodName: "SetTaskStatus", Handler: setTaskStatusHandler},
		{MethodName: "ProduceTask", Handler: produceTaskHandler},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "taskworker/broker/v1/consumer",
}

func fetchTaskHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(FetchTaskRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsumerServer).FetchTask(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: fetchTaskMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConsumerServer).FetchTask(ctx, req.(*FetchTaskRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func setTaskStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(SetTaskStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsumerServer).SetTaskStatus(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: setTaskStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConsumerServer).SetTaskStatus(ctx, req.(*SetTaskStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func produceTaskHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(ProduceTaskRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsumerServer).ProduceTask(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: produceTaskMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConsumerServer).ProduceTask(ctx, req.(*ProduceTaskRequest))
	}
	return interceptor(ctx, in, info, handler)
}
