package sessions

import "time"

// Session is a refresh session issued at login. The refresh token is the
// lookup key; Sub ties it to the user whose document manager it unlocks.
type Session struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	RefreshToken string    `bson:"refreshToken" json:"refreshToken"`
	Sub          string    `bson:"sub" json:"sub"`
	ExpiresAt    time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

func (s *Session) expired(now time.Time) bool { return now.After(s.ExpiresAt) }
