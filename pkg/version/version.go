package version

import (
	"fmt"

	apkversion "github.com/knqyf263/go-apk-version"
)

// Result is the outcome of comparing two versions.
type Result int

const (
	Older Result = -1
	Equal Result = 0
	Newer Result = 1
)

func (r Result) String() string {
	switch r {
	case Older:
		return "older"
	case Newer:
		return "newer"
	default:
		return "equal"
	}
}

// Comparator reports how a relates to b.
type Comparator func(a, b string) (Result, error)

// Compare reports whether the apk version a is Newer, Older
// or Equal to b.
func Compare(a, b string) (Result, error) {
	va, err := apkversion.NewVersion(a)
	if err != nil {
		return Equal, fmt.Errorf("parsing version %q: %w", a, err)
	}
	vb, err := apkversion.NewVersion(b)
	if err != nil {
		return Equal, fmt.Errorf("parsing version %q: %w", b, err)
	}
	switch c := va.Compare(vb); {
	case c > 0:
		return Newer, nil
	case c < 0:
		return Older, nil
	default:
		return Equal, nil
	}
}

// Join combines pkgver and pkgrel into a full package version.
func Join(pkgver, pkgrel string) string {
	return pkgver + "-r" + pkgrel
}
