package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go-payment-service/domain"
	"go-payment-service/pkg/resilient"
)

const (
	CourseServiceName = "elearning.course.v1.CourseService"
	MethodGetCourse   = "/" + CourseServiceName + "/GetCourse"
	MethodGetPackage  = "/" + CourseServiceName + "/GetPackage"
	UserServiceName   = "elearning.user.v1.UserService"
	MethodGetUser     = "/" + UserServiceName + "/GetUser"
)

type GetByIDRequest struct {
	ID string `json:"id"`
}

type CourseRPCClient struct {
	conn      grpc.ClientConnInterface
	resilient *resilient.Client
}

var _ domain.CourseCatalog = (*CourseRPCClient)(nil)

func NewCourseRPCClient(conn grpc.ClientConnInterface, rc *resilient.Client) *CourseRPCClient {
	return &CourseRPCClient{conn: conn, resilient: rc}
}

func (c *CourseRPCClient) GetCourse(ctx context.Context, courseID string) (*domain.Course, error) {
	return resilient.Fetch(ctx, c.resilient, domain.ResourceCourses, courseID, func(ctx context.Context) (*domain.Course, error) {
		out := new(domain.Course)
		err := c.conn.Invoke(ctx, MethodGetCourse, &GetByIDRequest{ID: courseID}, out, grpc.CallContentSubtype(CodecName))
		if err != nil {
			return nil, fromStatus(err, domain.ErrCourseNotFound.WithReasonf("course %s does not exist", courseID))
		}
		return out, nil
	})
}

func (c *CourseRPCClient) GetPackage(ctx context.Context, packageID string) (*domain.Package, error) {
	return resilient.Fetch(ctx, c.resilient, domain.ResourcePackages, packageID, func(ctx context.Context) (*domain.Package, error) {
		out := new(domain.Package)
		err := c.conn.Invoke(ctx, MethodGetPackage, &GetByIDRequest{ID: packageID}, out, grpc.CallContentSubtype(CodecName))
		if err != nil {
			return nil, fromStatus(err, domain.ErrPackageNotFound.WithReasonf("package %s does not exist", packageID))
		}
		return out, nil
	})
}

// fromStatus maps the answers that describe the request rather than the
// upstream's health onto domain errors. They are not retried and do not trip
// the breaker. Everything else is returned as is for the classifier.
func fromStatus(err error, notFound *domain.DetailedError) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return notFound
	case codes.InvalidArgument:
		return domain.ErrBadRequest.WithReason(st.Message())
	default:
		return err
	}
}
