package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/wattsup/nummus/internal/usecase/batch"
	"github.com/wattsup/nummus/internal/usecase/valuation"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "nummus.v1.ValuationService"

// ValuationServiceServer is the server API for ValuationService
type ValuationServiceServer interface {
	GetValue(context.Context, *SeriesRequest) (*valuation.Series, error)
	GetValueAll(context.Context, *SeriesAllRequest) (*batch.SeriesSet, error)
	GetProfit(context.Context, *SeriesRequest) (*valuation.Series, error)
	GetProfitAll(context.Context, *SeriesAllRequest) (*batch.SeriesSet, error)
	GetCashFlow(context.Context, *CashFlowRequest) (*valuation.CashFlow, error)
	GetCashFlowAll(context.Context, *CashFlowAllRequest) (*batch.CashFlowSet, error)
	GetAssetQty(context.Context, *AssetQtyRequest) (*valuation.QuantitySeries, error)
	GetAssetQtyAll(context.Context, *AssetQtyAllRequest) (*batch.QuantitySet, error)
	ApplyCorporateSplit(context.Context, *CorporateSplitMessage) (*CorporateSplitMessage, error)
	RecordTransaction(context.Context, *TransactionMessage) (*TransactionMessage, error)
	DeleteTransaction(context.Context, *DeleteTransactionRequest) (*TransactionMessage, error)
	AddValuation(context.Context, *ValuationMessage) (*ValuationMessage, error)
	CreateAccount(context.Context, *AccountMessage) (*AccountMessage, error)
	CreateAsset(context.Context, *AssetMessage) (*AssetMessage, error)
}

// unaryHandler adapts a typed server method to grpc.MethodHandler
func unaryHandler[Req, Resp any](method string, call func(ValuationServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(ValuationServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*Req))
		})
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc describes ValuationService for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ValuationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetValue", Handler: unaryHandler("GetValue", ValuationServiceServer.GetValue)},
		{MethodName: "GetValueAll", Handler: unaryHandler("GetValueAll", ValuationServiceServer.GetValueAll)},
		{MethodName: "GetProfit", Handler: unaryHandler("GetProfit", ValuationServiceServer.GetProfit)},
		{MethodName: "GetProfitAll", Handler: unaryHandler("GetProfitAll", ValuationServiceServer.GetProfitAll)},
		{MethodName: "GetCashFlow", Handler: unaryHandler("GetCashFlow", ValuationServiceServer.GetCashFlow)},
		{MethodName: "GetCashFlowAll", Handler: unaryHandler("GetCashFlowAll", ValuationServiceServer.GetCashFlowAll)},
		{MethodName: "GetAssetQty", Handler: unaryHandler("GetAssetQty", ValuationServiceServer.GetAssetQty)},
		{MethodName: "GetAssetQtyAll", Handler: unaryHandler("GetAssetQtyAll", ValuationServiceServer.GetAssetQtyAll)},
		{MethodName: "ApplyCorporateSplit", Handler: unaryHandler("ApplyCorporateSplit", ValuationServiceServer.ApplyCorporateSplit)},
		{MethodName: "RecordTransaction", Handler: unaryHandler("RecordTransaction", ValuationServiceServer.RecordTransaction)},
		{MethodName: "DeleteTransaction", Handler: unaryHandler("DeleteTransaction", ValuationServiceServer.DeleteTransaction)},
		{MethodName: "AddValuation", Handler: unaryHandler("AddValuation", ValuationServiceServer.AddValuation)},
		{MethodName: "CreateAccount", Handler: unaryHandler("CreateAccount", ValuationServiceServer.CreateAccount)},
		{MethodName: "CreateAsset", Handler: unaryHandler("CreateAsset", ValuationServiceServer.CreateAsset)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nummus/v1/valuation.json",
}

// RegisterValuationServiceServer registers srv with s
func RegisterValuationServiceServer(s grpc.ServiceRegistrar, srv ValuationServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls ValuationService using the JSON codec
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetValue(ctx context.Context, in *SeriesRequest, opts ...grpc.CallOption) (*valuation.Series, error) {
	return invoke[valuation.Series](ctx, c, "GetValue", in, opts)
}

func (c *Client) GetValueAll(ctx context.Context, in *SeriesAllRequest, opts ...grpc.CallOption) (*batch.SeriesSet, error) {
	return invoke[batch.SeriesSet](ctx, c, "GetValueAll", in, opts)
}

func (c *Client) GetProfit(ctx context.Context, in *SeriesRequest, opts ...grpc.CallOption) (*valuation.Series, error) {
	return invoke[valuation.Series](ctx, c, "GetProfit", in, opts)
}

func (c *Client) GetProfitAll(ctx context.Context, in *SeriesAllRequest, opts ...grpc.CallOption) (*batch.SeriesSet, error) {
	return invoke[batch.SeriesSet](ctx, c, "GetProfitAll", in, opts)
}

func (c *Client) GetCashFlow(ctx context.Context, in *CashFlowRequest, opts ...grpc.CallOption) (*valuation.CashFlow, error) {
	return invoke[valuation.CashFlow](ctx, c, "GetCashFlow", in, opts)
}

func (c *Client) GetCashFlowAll(ctx context.Context, in *CashFlowAllRequest, opts ...grpc.CallOption) (*batch.CashFlowSet, error) {
	return invoke[batch.CashFlowSet](ctx, c, "GetCashFlowAll", in, opts)
}

func (c *Client) GetAssetQty(ctx context.Context, in *AssetQtyRequest, opts ...grpc.CallOption) (*valuation.QuantitySeries, error) {
	return invoke[valuation.QuantitySeries](ctx, c, "GetAssetQty", in, opts)
}

func (c *Client) GetAssetQtyAll(ctx context.Context, in *AssetQtyAllRequest, opts ...grpc.CallOption) (*batch.QuantitySet, error) {
	return invoke[batch.QuantitySet](ctx, c, "GetAssetQtyAll", in, opts)
}

func (c *Client) ApplyCorporateSplit(ctx context.Context, in *CorporateSplitMessage, opts ...grpc.CallOption) (*CorporateSplitMessage, error) {
	return invoke[CorporateSplitMessage](ctx, c, "ApplyCorporateSplit", in, opts)
}

func (c *Client) RecordTransaction(ctx context.Context, in *TransactionMessage, opts ...grpc.CallOption) (*TransactionMessage, error) {
	return invoke[TransactionMessage](ctx, c, "RecordTransaction", in, opts)
}

func (c *Client) DeleteTransaction(ctx context.Context, in *DeleteTransactionRequest, opts ...grpc.CallOption) (*TransactionMessage, error) {
	return invoke[TransactionMessage](ctx, c, "DeleteTransaction", in, opts)
}

func (c *Client) AddValuation(ctx context.Context, in *ValuationMessage, opts ...grpc.CallOption) (*ValuationMessage, error) {
	return invoke[ValuationMessage](ctx, c, "AddValuation", in, opts)
}

func (c *Client) CreateAccount(ctx context.Context, in *AccountMessage, opts ...grpc.CallOption) (*AccountMessage, error) {
	return invoke[AccountMessage](ctx, c, "CreateAccount", in, opts)
}

func (c *Client) CreateAsset(ctx context.Context, in *AssetMessage, opts ...grpc.CallOption) (*AssetMessage, error) {
	return invoke[AssetMessage](ctx, c, "CreateAsset", in, opts)
}
