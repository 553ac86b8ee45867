package common

const (
	// AuthorizationHeaderName is the gRPC metadata key carrying
	// "Bearer <identity token>".
	AuthorizationHeaderName = "authorization"

	// AccessTokenHeaderName is accepted as a bare-token alternative.
	AccessTokenHeaderName = "access_token"
)
