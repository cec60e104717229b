package youtube

import (
	yt "github.com/kkdai/youtube/v2"

	"github.com/Thomas5624/echo-backend/rotation"
)

// Identity is a request persona used against the primary upstream.
type Identity struct {
	Name      string
	UserAgent string
	persona   func()
}

func androidPersona() { yt.DefaultClient = yt.AndroidClient }

func webPersona() { yt.DefaultClient = yt.WebClient }

var DefaultIdentities = []Identity{
	{
		Name:      "ANDROID",
		UserAgent: "com.google.android.youtube/19.29.37 (Linux; U; Android 14) gzip",
		persona:   androidPersona,
	},
	{
		Name:      "WEB",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		persona:   webPersona,
	},
	{
		Name:      "ANDROID_MUSIC",
		UserAgent: "com.google.android.apps.youtube.music/7.11.50 (Linux; U; Android 14) gzip",
		persona:   androidPersona,
	},
	{
		Name:      "MWEB",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		persona:   webPersona,
	},
}

// NewSelector cycles through identities, defaulting to DefaultIdentities.
func NewSelector(identities ...Identity) *rotation.Ring[Identity] {
	if len(identities) == 0 {
		identities = DefaultIdentities
	}
	return rotation.New(identities...)
}
