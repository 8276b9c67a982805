package domain

import (
	"context"
	"net/http"
)

var (
	ErrPackageNotFound = &DetailedError{
		IDField:         "PACKAGE_NOT_FOUND",
		StatusDescField: http.StatusText(http.StatusNotFound),
		ErrorField:      "Package not found",
		StatusCodeField: http.StatusNotFound,
	}
	ErrUserNotFound = &DetailedError{
		IDField:         "USER_NOT_FOUND",
		StatusDescField: http.StatusText(http.StatusNotFound),
		ErrorField:      "User not found",
		StatusCodeField: http.StatusNotFound,
	}
)

// Resource types cached in front of upstream lookups.
const (
	ResourceCourses     = "courses"
	ResourcePackages    = "packages"
	ResourceUsers       = "users"
	ResourceEnrollments = "enrollments"
)

// Upstream service names, used as circuit breaker keys.
const (
	UpstreamCourse = "course-service"
	UpstreamUser   = "user-service"
)

type Course struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Published   bool   `json:"published"`
}

type Package struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
}

type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// CourseCatalog reads courses and packages owned by the course service.
type CourseCatalog interface {
	GetCourse(ctx context.Context, courseID string) (*Course, error)
	GetPackage(ctx context.Context, packageID string) (*Package, error)
}

// UserDirectory reads user profiles owned by the user service.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*UserProfile, error)
	// Forget drops the cached profile so the next read asks the user service.
	Forget(userID string)
}
