// Package voice issues short-lived credentials for the voice collaborator.
// The server never proxies or mixes audio itself; it only mints signed
// access tokens an external media server (LiveKit-shaped) accepts.
package voice

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultMaxParticipants is the MaxParticipants value NewRoom records for a
// project's voice room. Nothing in this package enforces it.
const DefaultMaxParticipants = 50

// DefaultTokenTTL is how long an issued credential remains valid.
const DefaultTokenTTL = 6 * time.Hour

// Permissions controls what a voice participant's token authorizes.
type Permissions struct {
	CanPublish     bool
	CanSubscribe   bool
	CanPublishData bool
}

// Full grants publish, subscribe, and data-channel access.
func Full() Permissions { return Permissions{CanPublish: true, CanSubscribe: true, CanPublishData: true} }

// ListenOnly grants subscribe access without publishing.
func ListenOnly() Permissions { return Permissions{CanSubscribe: true} }

// Muted grants subscribe and data access but not audio publish.
func Muted() Permissions { return Permissions{CanSubscribe: true, CanPublishData: true} }

// Room describes a project's voice room state as reported to clients.
type Room struct {
	RoomName         string
	MaxParticipants  int
	Active           bool
	CreatedAt        time.Time
	ParticipantCount int
}

// NewRoom creates a Room descriptor for a project's voice channel.
func NewRoom(roomName string) Room {
	return Room{RoomName: roomName, MaxParticipants: DefaultMaxParticipants, CreatedAt: time.Now()}
}

// Participant describes one connected voice participant.
type Participant struct {
	ParticipantID string
	Name          string
	RoomName      string
	Muted         bool
	Deafened      bool
	Speaking      bool
	JoinedAt      time.Time
}

// videoGrant is the LiveKit-shaped grant embedded in the JWT's "video" claim.
type videoGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

type accessTokenClaims struct {
	jwt.RegisteredClaims
	Video videoGrant `json:"video"`
	Name  string     `json:"name"`
}

// Issuer mints and can revoke voice credentials.
type Issuer interface {
	IssueToken(roomName, participantID, participantName string, perms Permissions) (string, error)
	Revoke(participantID string) error
}

// LiveKitIssuer signs LiveKit-shaped JWT access tokens with an API
// key/secret pair, exactly the credential shape the original's voice
// collaborator issues.
type LiveKitIssuer struct {
	APIKey    string
	APISecret string
	ServerURL string
	TTL       time.Duration
}

// NewLiveKitIssuer builds an issuer from the configured API credentials.
func NewLiveKitIssuer(apiKey, apiSecret, serverURL string) *LiveKitIssuer {
	return &LiveKitIssuer{APIKey: apiKey, APISecret: apiSecret, ServerURL: serverURL, TTL: DefaultTokenTTL}
}

// IssueToken signs a new access token scoping participantID into roomName
// with the given permissions.
func (i *LiveKitIssuer) IssueToken(roomName, participantID, participantName string, perms Permissions) (string, error) {
	if i.APIKey == "" || i.APISecret == "" {
		return "", errors.New("voice: issuer not configured")
	}
	now := time.Now()
	claims := accessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.APIKey,
			Subject:   participantID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.TTL)),
		},
		Name: participantName,
		Video: videoGrant{
			Room:           roomName,
			RoomJoin:       true,
			CanPublish:     perms.CanPublish,
			CanSubscribe:   perms.CanSubscribe,
			CanPublishData: perms.CanPublishData,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.APISecret))
	if err != nil {
		return "", errors.Wrap(err, "voice: sign token")
	}
	return signed, nil
}

// Revoke is a no-op for JWT-based credentials: tokens are short-lived and
// self-expiring, so there is nothing server-side to invalidate.
func (i *LiveKitIssuer) Revoke(participantID string) error { return nil }
