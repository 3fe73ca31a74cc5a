package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/smithy-go"
	"github.com/grvbrk/vidcatalog_server/internal/models"
)

// CognitoAPI is the subset of the Cognito user pool client we call.
type CognitoAPI interface {
	GetUser(ctx context.Context, params *cognitoidentityprovider.GetUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GetUserOutput, error)
}

// Cognito reports throttling as a client fault, but it says nothing about the token.
var providerFaultCodes = map[string]bool{
	"InternalErrorException":   true,
	"TooManyRequestsException": true,
}

func providerFault(apiErr smithy.APIError) bool {
	return apiErr.ErrorFault() == smithy.FaultServer || providerFaultCodes[apiErr.ErrorCode()]
}

// CognitoResolver validates access tokens with GetUser. The Cognito username
// becomes the display name.
type CognitoResolver struct {
	client CognitoAPI
}

var _ Resolver = (*CognitoResolver)(nil)

func NewCognitoResolver(client CognitoAPI) *CognitoResolver {
	return &CognitoResolver{client: client}
}

func (c *CognitoResolver) Resolve(ctx context.Context, credential string) (*models.Identity, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrUnauthorized)
	}

	out, err := c.client.GetUser(ctx, &cognitoidentityprovider.GetUserInput{
		AccessToken: aws.String(credential),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			if providerFault(apiErr) {
				return nil, fmt.Errorf("%w: %s: %s", ErrProviderUnavailable, apiErr.ErrorCode(), apiErr.ErrorMessage())
			}
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.ErrorMessage())
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	username := aws.ToString(out.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: token has no username", ErrUnauthorized)
	}

	subject := username
	for _, attr := range out.UserAttributes {
		if aws.ToString(attr.Name) == "sub" && aws.ToString(attr.Value) != "" {
			subject = aws.ToString(attr.Value)
			break
		}
	}

	return &models.Identity{
		Subject:     subject,
		DisplayName: username,
	}, nil
}
