package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicsched/backend/internal/domain"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("s3cret", "clinicsched")
	token, err := v.Issue(domain.Caller{UserID: "u-7", ProviderID: 7}, time.Minute)
	require.NoError(t, err)

	caller, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Caller{UserID: "u-7", ProviderID: 7}, caller)
}

func TestVerifier_Rejects(t *testing.T) {
	good := NewVerifier("s3cret", "clinicsched")

	expired, err := good.Issue(domain.Caller{UserID: "u-7"}, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := NewVerifier("other", "clinicsched").Issue(domain.Caller{UserID: "u-7"}, time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := NewVerifier("s3cret", "someone-else").Issue(domain.Caller{UserID: "u-7"}, time.Minute)
	require.NoError(t, err)
	noSubject, err := good.Issue(domain.Caller{}, time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u-7", "iss": "clinicsched"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"expired":      expired,
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"alg none":     none,
		"garbage":      "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := good.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = good.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer  abc ", want: "abc"},
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer", wantErr: true},
	}
	for _, tc := range cases {
		got, err := BearerToken(tc.header)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrMissingToken, tc.header)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestCallerContext(t *testing.T) {
	_, ok := CallerFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithCaller(context.Background(), domain.Caller{UserID: "u-1"})
	caller, ok := CallerFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u-1", caller.UserID)
}
