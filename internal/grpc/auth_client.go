package grpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"hire-realtime/internal/apperr"
)

const validateTokenMethod = "/auth.AuthService/ValidateToken"

var (
	ErrInvalidToken = apperr.New(apperr.KindUnauthenticated, "invalid_token", "invalid token")
	ErrAuthFailed   = apperr.New(apperr.KindUnauthenticated, "auth_unavailable", "authentication failed")
)

// Identity is the authenticated caller as reported by the auth service.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// AuthClient wraps the auth-service gRPC connection.
type AuthClient struct {
	conn grpc.ClientConnInterface
}

// NewAuthClient constructs the wrapper.
func NewAuthClient(conn grpc.ClientConnInterface) *AuthClient {
	return &AuthClient{conn: conn}
}

// Dial opens a traced client connection to the auth service.
func Dial(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
}

// ValidateToken verifies a bearer token and returns the caller identity.
func (a *AuthClient) ValidateToken(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	req, err := structpb.NewStruct(map[string]any{"token": token})
	if err != nil {
		return Identity{}, ErrAuthFailed.WithCause(err)
	}

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, validateTokenMethod, req, resp); err != nil {
		return Identity{}, ErrAuthFailed.WithCause(err)
	}

	fields := resp.GetFields()
	if !fields["valid"].GetBoolValue() {
		return Identity{}, ErrInvalidToken
	}
	userID := stringField(fields["user_id"])
	if userID == "" || userID == "0" {
		return Identity{}, ErrInvalidToken.WithCause(errors.New("token has no subject"))
	}
	return Identity{
		UserID: userID,
		Email:  stringField(fields["email"]),
		Role:   stringField(fields["role"]),
	}, nil
}

// stringField accepts string or numeric ids.
func stringField(v *structpb.Value) string {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatInt(int64(kind.NumberValue), 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(v.AsInterface())
	}
}
