package types

import (
	"fmt"
	"strconv"
)

// PlaybackSpeed is the audio playback rate preferred by the user.
type PlaybackSpeed float64

const (
	SpeedVerySlow PlaybackSpeed = 0.5
	SpeedSlow     PlaybackSpeed = 0.75
	SpeedNormal   PlaybackSpeed = 1.0
	SpeedFast     PlaybackSpeed = 1.5
	SpeedVeryFast PlaybackSpeed = 2.0
)

// PlaybackSpeeds lists the supported speeds, slowest first.
var PlaybackSpeeds = []PlaybackSpeed{SpeedVerySlow, SpeedSlow, SpeedNormal, SpeedFast, SpeedVeryFast}

// ParsePlaybackSpeed parses one of the supported speeds, e.g. "0.75".
func ParsePlaybackSpeed(s string) (PlaybackSpeed, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid playback speed %q: %w", s, err)
	}
	for _, sp := range PlaybackSpeeds {
		if PlaybackSpeed(f) == sp {
			return sp, nil
		}
	}
	return 0, fmt.Errorf("unsupported playback speed %v", f)
}

func (s PlaybackSpeed) String() string {
	return strconv.FormatFloat(float64(s), 'f', -1, 64)
}

// UserInfo holds the credentials used to log in again.
type UserInfo struct {
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

// Tokens is the bearer access/refresh token pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// RegistrationRequest is sent to create a new account.
type RegistrationRequest struct {
	Mobile   string `json:"mobile"`
	Operator string `json:"operator"`
	Name     string `json:"name"`
	Password string `json:"password"`
}
