package testing

import (
	"fmt"
	"os"
)

// FileChecker allows chaining multiple checks on a file path.
type FileChecker struct {
	Path   string
	Checks []func(string) error
}

// NewFileChecker creates a FileChecker for the given path.
func NewFileChecker(path string) *FileChecker {
	return &FileChecker{Path: path, Checks: []func(string) error{}}
}

// Check runs all checks on the FileChecker's path and aggregates every
// failure instead of stopping at the first one.
func (fc *FileChecker) Check() error {
	errs := MultiError{}
	for _, check := range fc.Checks {
		if err := check(fc.Path); err != nil {
			AppendErr(&errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return errs
}

// IsFile adds a check that the path is a regular file.
func (fc *FileChecker) IsFile() *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		info, err := getInfo(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("expected file but is a directory: %s", path)
		}
		return nil
	})
	return fc
}

// IsDir adds a check that the path is a directory.
func (fc *FileChecker) IsDir() *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		info, err := getInfo(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("expected directory but not a directory: %s", path)
		}
		return nil
	})
	return fc
}

// SizeEquals adds a check that the file at the path has the given size.
func (fc *FileChecker) SizeEquals(want int64) *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		info, err := getInfo(path)
		if err != nil {
			return err
		}
		if info.Size() != want {
			return fmt.Errorf("size mismatch for %s: want %d got %d", path, want, info.Size())
		}
		return nil
	})
	return fc
}

// Content adds a check that the file at the path has the specified content.
func (fc *FileChecker) Content(content string) *FileChecker {
	checkContentFunc := func(path string, want string) error {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		got := string(b)
		if got != want {
			return fmt.Errorf("file %s content mismatch\nwant:\n%q\n\ngot:\n%q", path, want, got)
		}
		return nil
	}

	fc.Checks = append(fc.Checks, func(path string) error {
		return checkContentFunc(path, content)
	})
	return fc
}

func getInfo(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path does not exist: %s", path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return info, nil
}
