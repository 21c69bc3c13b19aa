package load

// Version is the vuload release, overridden at build time with
// -ldflags "-X github.com/wesleyorama2/vuload/internal/load.Version=...".
var Version = "0.1.0"

// UserAgent returns the default User-Agent sent by virtual users.
func UserAgent() string {
	return "vuload/" + Version
}
