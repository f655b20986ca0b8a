// Package aad provides an Azure Active Directory claims-based security token provider.
package aad

//	MIT License
//
//	Copyright (c) Microsoft Corporation. All rights reserved.
//
//	Permission is hereby granted, free of charge, to any person obtaining a copy
//	of this software and associated documentation files (the "Software"), to deal
//	in the Software without restriction, including without limitation the rights
//	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
//	copies of the Software, and to permit persons to whom the Software is
//	furnished to do so, subject to the following conditions:
//
//	The above copyright notice and this permission notice shall be included in all
//	copies or substantial portions of the Software.
//
//	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
//	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
//	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
//	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
//	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
//	SOFTWARE

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/go-autorest/autorest/adal"
	"github.com/Azure/go-autorest/autorest/azure"

	"github.com/Azure/azure-event-hubs-amqp-go/auth"
)

const eventhubResourceURI = "https://eventhubs.azure.net/"

type (
	// TokenProvider provides auth.TokenProvider functionality for Azure Active Directory JWT tokens
	TokenProvider struct {
		tokenProvider *adal.ServicePrincipalToken
	}

	// TokenProviderConfiguration provides the necessary configuration to build an AAD token provider
	TokenProviderConfiguration struct {
		TenantID     string
		ClientID     string
		ClientSecret string
		Env          *azure.Environment
	}

	// JWTProviderOption provides configuration options for a JWT TokenProvider
	JWTProviderOption func(*TokenProviderConfiguration) error
)

// JWTProviderWithEnvironmentVars configures the provider from "AZURE_TENANT_ID", "AZURE_CLIENT_ID"
// and "AZURE_CLIENT_SECRET". "AZURE_ENVIRONMENT" selects the cloud (default Azure public cloud).
func JWTProviderWithEnvironmentVars() JWTProviderOption {
	return func(config *TokenProviderConfiguration) error {
		config.TenantID = os.Getenv("AZURE_TENANT_ID")
		config.ClientID = os.Getenv("AZURE_CLIENT_ID")
		config.ClientSecret = os.Getenv("AZURE_CLIENT_SECRET")
		if config.TenantID == "" || config.ClientID == "" || config.ClientSecret == "" {
			return errors.New("aad: AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET must all be set")
		}

		if envName := os.Getenv("AZURE_ENVIRONMENT"); envName != "" {
			env, err := azure.EnvironmentFromName(envName)
			if err != nil {
				return err
			}
			config.Env = &env
		}
		return nil
	}
}

// JWTProviderWithAzureEnvironment configures the provider to use the given Azure cloud environment
func JWTProviderWithAzureEnvironment(env *azure.Environment) JWTProviderOption {
	return func(config *TokenProviderConfiguration) error {
		config.Env = env
		return nil
	}
}

// NewJWTProvider builds an Azure Active Directory claims-based security token provider
func NewJWTProvider(opts ...JWTProviderOption) (*TokenProvider, error) {
	config := new(TokenProviderConfiguration)
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	if config.Env == nil {
		env := azure.PublicCloud
		config.Env = &env
	}

	spToken, err := config.newServicePrincipalToken()
	if err != nil {
		return nil, err
	}
	return NewProvider(spToken), nil
}

// NewProvider builds a token provider around an existing service principal token
func NewProvider(spToken *adal.ServicePrincipalToken) *TokenProvider {
	return &TokenProvider{
		tokenProvider: spToken,
	}
}

// GetToken gets a CBS JWT token. The audience parameter is ignored: AAD tokens are scoped to the
// Event Hubs resource, and the service derives the entity from the link the token accompanies.
func (t *TokenProvider) GetToken(ctx context.Context, audience string) (*auth.Token, error) {
	if err := t.tokenProvider.EnsureFreshWithContext(ctx); err != nil {
		return nil, err
	}

	token := t.tokenProvider.Token()
	expiry := strconv.FormatInt(token.Expires().UTC().Unix(), 10)
	return auth.NewToken(auth.CBSTokenTypeJWT, token.AccessToken, expiry), nil
}

func (c *TokenProviderConfiguration) newServicePrincipalToken() (*adal.ServicePrincipalToken, error) {
	oauthConfig, err := adal.NewOAuthConfig(c.Env.ActiveDirectoryEndpoint, c.TenantID)
	if err != nil {
		return nil, err
	}
	return adal.NewServicePrincipalToken(*oauthConfig, c.ClientID, c.ClientSecret, eventhubResourceURI)
}
