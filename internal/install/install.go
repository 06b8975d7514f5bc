// Package install copies the dylibs named in a configuration to the
// on-disk locations implied by their install names, before the target is
// patched to reference those locations.
package install

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/leanderhendrikx/weedless/internal/config"
)

const executablePathToken = "@executable_path"

// FullPath resolves a dylib's install_name to a concrete filesystem path,
// substituting @executable_path with the directory containing the target
// executable. Any other install name is returned unresolved as a plain path.
func FullPath(installName string, executableDir string) string {
	if i := strings.Index(installName, executablePathToken); i >= 0 {
		installName = installName[:i] + executableDir + installName[i+len(executablePathToken):]
	}
	return filepath.Clean(installName)
}

// Dylibs copies every configured dylib to the path implied by its install
// name, skipping any whose source already is that path.
func Dylibs(cfg config.Config) error {
	executableDir := filepath.Dir(cfg.Target)

	for _, d := range cfg.Dylibs {
		dst, err := filepath.Abs(FullPath(d.InstallName, executableDir))
		if err != nil {
			return errors.Wrapf(err, "resolving install path for dylib %q", d.Name)
		}
		src, err := filepath.Abs(d.Path)
		if err != nil {
			return errors.Wrapf(err, "resolving source path for dylib %q", d.Name)
		}
		if src == dst {
			continue
		}
		if err := copyFile(d.Path, dst); err != nil {
			return errors.Wrapf(err, "installing dylib %q", d.Name)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
