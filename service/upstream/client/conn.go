package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

type ServiceTokenIssuer interface {
	IssueServiceToken() (string, error)
}

// ServiceTokenInterceptor attaches a freshly signed service token to every
// outbound call.
func ServiceTokenInterceptor(issuer ServiceTokenIssuer) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		token, err := issuer.IssueServiceToken()
		if err != nil {
			return fmt.Errorf("issue service token: %w", err)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// Dial opens a lazily connecting client for addr using the JSON codec.
func Dial(addr string, issuer ServiceTokenIssuer, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	if issuer != nil {
		base = append(base, grpc.WithUnaryInterceptor(ServiceTokenInterceptor(issuer)))
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}
