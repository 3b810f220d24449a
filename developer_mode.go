//go:build dev
// +build dev

package latexeditor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// In developer mode the static files and help page are read from the source
// tree, so edits to them show up without rebuilding the binary.
func init() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("developer mode enabled but cannot determine source file location.")
	}
	if strings.HasPrefix(file, "github.com") {
		fmt.Printf("developer mode: source root directory determined to be %s which is likely wrong and will cause problems. Please check if -trimpath flag was used in building the binary.\n", filepath.Dir(file))
	}
	RuntimeFS = os.DirFS(filepath.Dir(file))
	developerMode = true
}
