package s3blob

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeHTTPStatusError struct{ status int }

func (e *fakeHTTPStatusError) Error() string    { return "http error" }
func (e *fakeHTTPStatusError) HTTPStatusCode() int { return e.status }

func TestIsNotFoundDetectsNoSuchKey(t *testing.T) {
	t.Parallel()
	if !isNotFound(&types.NoSuchKey{}) {
		t.Error("expected NoSuchKey to be detected as not found")
	}
}

func TestIsNotFoundDetectsTypesNotFound(t *testing.T) {
	t.Parallel()
	if !isNotFound(&types.NotFound{}) {
		t.Error("expected types.NotFound to be detected as not found")
	}
}

func TestIsNotFoundDetectsHTTP404(t *testing.T) {
	t.Parallel()
	if !isNotFound(&fakeHTTPStatusError{status: 404}) {
		t.Error("expected a 404 HTTP status error to be detected as not found")
	}
}

func TestIsNotFoundFalseForOtherErrors(t *testing.T) {
	t.Parallel()
	if isNotFound(errors.New("connection reset")) {
		t.Error("expected a generic error not to be treated as not-found")
	}
	if isNotFound(&fakeHTTPStatusError{status: 500}) {
		t.Error("expected a 500 HTTP status error not to be treated as not-found")
	}
}
