/*
Package authsdk is the Go client for the tabauth session service.

# SDKClient and Session

An SDKClient carries a cookie jar and behaves like a single browser: the
session cookie set by Register, Login or ProviderLogin is sent back on every
later call.

	client, err := authsdk.NewSDKClient("https://auth.example.com")

	resp, err := client.Login(ctx, "alice@example.com", password)
	if resp.RequiresTwoFactor {
		resp, err = client.VerifyTwoFactor(ctx, totpCode)
	}

A Session wraps the bearer tokens of a successful response and refreshes the
access token shortly before it expires. Refresh tokens are single use, so the
Session replaces both tokens on every refresh.

	session, err := client.NewSession(resp)
	setup, err := session.SetupTwoFactor(ctx)
	err = session.VerifyTwoFactorSetup(ctx, codeFromAuthenticator)

# Errors

Every failed call returns an *APIError. Compare codes with ErrorCode or
errors.Is against the predefined values:

	if authsdk.ErrorCode(err) == authsdk.ErrorCodeInvalidTwoFactorCode {
		// ask again
	}

The same type is used by the server to write error bodies, so the codes are
the ones listed in this package.
*/
package authsdk
