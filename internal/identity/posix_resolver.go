package identity

import (
	"os"
	"os/user"
	"runtime"

	maxerrors "github.com/kellyelton/maxbackup/internal/errors"
)

// PosixResolver resolves sids as POSIX usernames or numeric uids via
// os/user, falling back to a name-derived home directory guess when the
// authoritative lookup fails but a directory of that shape still exists.
// No pack example vendors a cross-platform account-registry client; os/user
// is the standard library's own portable primitive for this, so it is used
// directly rather than introducing a dependency that does not exist in the
// corpus — see DESIGN.md.
type PosixResolver struct{}

// NewPosixResolver constructs a PosixResolver.
func NewPosixResolver() *PosixResolver {
	return &PosixResolver{}
}

// Resolve implements Resolver.
func (r *PosixResolver) Resolve(sid string) (*Profile, error) {
	u, err := lookupUser(sid)
	if err == nil {
		if _, statErr := os.Stat(u.HomeDir); statErr == nil {
			return &Profile{DisplayName: displayName(u), HomeDirectory: u.HomeDir}, nil
		}
		// Authoritative record exists but its home directory is gone;
		// fall through to the heuristic in case the account was
		// provisioned under a different directory convention.
	}

	home := heuristicHomeDir(sid)
	if _, statErr := os.Stat(home); statErr != nil {
		return nil, nil
	}

	return &Profile{DisplayName: sid, HomeDirectory: home}, nil
}

func lookupUser(sid string) (*user.User, error) {
	if u, err := user.LookupId(sid); err == nil {
		return u, nil
	}

	u, err := user.Lookup(sid)
	if err != nil {
		return nil, maxerrors.WrapWithCode(err, maxerrors.ErrIdentityUnresolved, "looking up user %s", sid)
	}
	return u, nil
}

func heuristicHomeDir(sid string) string {
	if runtime.GOOS == "darwin" {
		return "/Users/" + sid
	}
	return "/home/" + sid
}

func displayName(u *user.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
