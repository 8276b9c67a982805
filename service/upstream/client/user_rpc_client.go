package client

import (
	"context"

	"google.golang.org/grpc"

	"go-payment-service/domain"
	"go-payment-service/pkg/resilient"
)

type UserRPCClient struct {
	conn      grpc.ClientConnInterface
	resilient *resilient.Client
}

var _ domain.UserDirectory = (*UserRPCClient)(nil)

func NewUserRPCClient(conn grpc.ClientConnInterface, rc *resilient.Client) *UserRPCClient {
	return &UserRPCClient{conn: conn, resilient: rc}
}

func (c *UserRPCClient) GetUser(ctx context.Context, userID string) (*domain.UserProfile, error) {
	return resilient.Fetch(ctx, c.resilient, domain.ResourceUsers, userID, func(ctx context.Context) (*domain.UserProfile, error) {
		out := new(domain.UserProfile)
		err := c.conn.Invoke(ctx, MethodGetUser, &GetByIDRequest{ID: userID}, out, grpc.CallContentSubtype(CodecName))
		if err != nil {
			return nil, fromStatus(err, domain.ErrUserNotFound.WithReasonf("user %s does not exist", userID))
		}
		return out, nil
	})
}

func (c *UserRPCClient) Forget(userID string) {
	c.resilient.Invalidate(domain.ResourceUsers, userID)
}
