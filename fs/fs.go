// Package fs prints and watches the on-disk asset directories (templates,
// static files, geometry layers).
package fs

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/dustin/go-humanize"

	"github.com/consorcio-sanramon/aforo-live/logger"
	"github.com/consorcio-sanramon/aforo-live/style"
)

// Print lists the tree under f with file sizes.
func Print(name string, f fs.FS) {
	entries, err := fs.ReadDir(f, ".")
	if err != nil {
		logger.Warn("Error reading %s: %v", name, err)
		return
	}

	fmt.Println(style.Section.Render(name + ":"))
	for _, entry := range entries {
		prefix := "  └─"
		if entry.IsDir() {
			fmt.Printf("%s %s\n", prefix, style.Dir.Render("📁 "+entry.Name()+"/"))
			PrintDir(f, entry.Name(), "     ")
		} else {
			fmt.Printf("%s %s %s\n", prefix, style.File.Render("📄 "+entry.Name()), sizeOf(entry))
		}
	}
}

func PrintDir(f fs.FS, dir string, indent string) {
	entries, err := fs.ReadDir(f, dir)
	if err != nil {
		return
	}

	for i, entry := range entries {
		isLast := i == len(entries)-1
		prefix := indent + "└─"
		if !isLast {
			prefix = indent + "├─"
		}

		if entry.IsDir() {
			fmt.Printf("%s %s\n", prefix, style.Dir.Render("📁 "+entry.Name()+"/"))
			newIndent := indent
			if isLast {
				newIndent += "   "
			} else {
				newIndent += "│  "
			}
			PrintDir(f, dir+"/"+entry.Name(), newIndent)
		} else {
			fmt.Printf("%s %s %s\n", prefix, style.File.Render("📄 "+entry.Name()), sizeOf(entry))
		}
	}
}

// Exists reports whether name is present in f.
func Exists(f fs.FS, name string) bool {
	_, err := fs.Stat(f, name)
	return !errors.Is(err, fs.ErrNotExist) && err == nil
}

func sizeOf(entry fs.DirEntry) string {
	info, err := entry.Info()
	if err != nil {
		return ""
	}
	return style.Info.Render("(" + humanize.Bytes(uint64(info.Size())) + ")")
}
