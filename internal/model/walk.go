package model

import (
	"io"
	"io/fs"
)

// Entry abstracts a scan document on a filesystem. It allows to get the
// path, Open the file and do stat.
type Entry interface {
	Path() string
	Open() (io.ReadCloser, error)
	Stat() (fs.FileInfo, error)
}
