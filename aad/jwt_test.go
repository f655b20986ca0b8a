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
	"testing"

	"github.com/Azure/go-autorest/autorest/azure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentialVars(t *testing.T, tenantID, clientID, clientSecret string) {
	t.Setenv("AZURE_TENANT_ID", tenantID)
	t.Setenv("AZURE_CLIENT_ID", clientID)
	t.Setenv("AZURE_CLIENT_SECRET", clientSecret)
	t.Setenv("AZURE_ENVIRONMENT", "")
}

func TestJWTProviderWithEnvironmentVars(t *testing.T) {
	setCredentialVars(t, "tenantID", "clientID", "clientSecret")

	provider, err := NewJWTProvider(JWTProviderWithEnvironmentVars())
	require.NoError(t, err)
	assert.NotNil(t, provider.tokenProvider)
}

func TestJWTProviderRequiresAllCredentialVars(t *testing.T) {
	cases := []struct {
		name                            string
		tenantID, clientID, clientSecret string
	}{
		{"missingTenantID", "", "clientID", "clientSecret"},
		{"missingClientID", "tenantID", "", "clientSecret"},
		{"missingClientSecret", "tenantID", "clientID", ""},
		{"allMissing", "", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCredentialVars(t, tc.tenantID, tc.clientID, tc.clientSecret)
			_, err := NewJWTProvider(JWTProviderWithEnvironmentVars())
			assert.Error(t, err)
		})
	}
}

func TestJWTProviderRejectsUnknownAzureEnvironment(t *testing.T) {
	setCredentialVars(t, "tenantID", "clientID", "clientSecret")
	t.Setenv("AZURE_ENVIRONMENT", "AZURENOWHERECLOUD")

	_, err := NewJWTProvider(JWTProviderWithEnvironmentVars())
	assert.Error(t, err)
}

func TestJWTProviderWithNamedAzureEnvironment(t *testing.T) {
	setCredentialVars(t, "tenantID", "clientID", "clientSecret")
	t.Setenv("AZURE_ENVIRONMENT", "AZUREUSGOVERNMENTCLOUD")

	provider, err := NewJWTProvider(JWTProviderWithEnvironmentVars())
	require.NoError(t, err)
	assert.NotNil(t, provider.tokenProvider)
}

func TestJWTProviderWithAzureEnvironmentOption(t *testing.T) {
	setCredentialVars(t, "tenantID", "clientID", "clientSecret")

	env := azure.GermanCloud
	provider, err := NewJWTProvider(JWTProviderWithEnvironmentVars(), JWTProviderWithAzureEnvironment(&env))
	require.NoError(t, err)
	assert.NotNil(t, provider.tokenProvider)
}
