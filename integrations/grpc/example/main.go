package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/aponysus/callscope/callscope"
	integration "github.com/aponysus/callscope/integrations/grpc"
	"github.com/aponysus/callscope/logsink"
	"github.com/aponysus/callscope/observe"
)

func main() {
	logger := logsink.NewLogger(os.Stdout, "text", slog.LevelInfo)
	engine := callscope.NewEngine(
		callscope.WithErrorMapper(integration.ErrorMapper),
		callscope.WithSink(logsink.NewSlogSink(logger)),
	)

	interceptor := integration.UnaryClientInterceptor(integration.WithEngine(engine))
	conn, err := grpc.NewClient("localhost:50051",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(interceptor),
	)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	defer conn.Close()

	fmt.Println("gRPC client initialized. Calls below use a stub invoker instead of a server.")

	ctx := observe.WithTraceID(context.Background(), observe.NewTraceID())
	for i, fail := range []bool{false, true} {
		invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			if fail {
				return status.Error(codes.InvalidArgument, "name is required")
			}
			return nil
		}
		err := interceptor(ctx, "/helloworld.Greeter/SayHello", map[string]any{"name": "ann"}, map[string]any{}, conn, invoker)
		fmt.Printf("call %d: err=%v\n", i+1, err)
	}
}
