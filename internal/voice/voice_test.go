package voice

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssueTokenSignsValidJWT(t *testing.T) {
	issuer := NewLiveKitIssuer("key", "secret", "wss://voice.example.com")

	tokenStr, err := issuer.IssueToken("proj-1", "peer-1", "ada", Full())
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	var claims accessTokenClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(tok *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	require.Equal(t, "proj-1", claims.Video.Room)
	require.True(t, claims.Video.RoomJoin)
	require.True(t, claims.Video.CanPublish)
	require.Equal(t, "peer-1", claims.Subject)
	require.Equal(t, "ada", claims.Name)
}

func TestIssueTokenRequiresConfiguration(t *testing.T) {
	issuer := &LiveKitIssuer{}
	_, err := issuer.IssueToken("proj-1", "peer-1", "ada", Full())
	require.Error(t, err)
}

func TestPermissionPresets(t *testing.T) {
	require.Equal(t, Permissions{CanPublish: true, CanSubscribe: true, CanPublishData: true}, Full())
	require.Equal(t, Permissions{CanSubscribe: true}, ListenOnly())
	require.Equal(t, Permissions{CanSubscribe: true, CanPublishData: true}, Muted())
}
