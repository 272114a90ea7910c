// Package all imports every collector implementation.
//
// Import it for its side effects to register the collectors:
//
//	import (
//		"github.com/git-pkgs/pkgsync"
//		_ "github.com/git-pkgs/pkgsync/all"
//	)
//
//	names := pkgsync.SupportedCollectors()
//	// ["aur", "nvchecker", "srcinfo"]
package all

import (
	_ "github.com/git-pkgs/pkgsync/internal/aur"
	_ "github.com/git-pkgs/pkgsync/internal/nvchecker"
	_ "github.com/git-pkgs/pkgsync/internal/srcinfo"
)
