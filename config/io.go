package config

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

type FullReader interface {
	Normalize(key string) string
	// nil,nil = not found
	ReadAll(key string) ([]byte, error)
}

type OsFullReader struct {
	base string
}

func NewOsFullReader(basePath string) (*OsFullReader, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, errors.Annotatef(err, "filepath.Abs() path=%s", basePath)
	}
	return &OsFullReader{base: abs}, nil
}

func (self *OsFullReader) SetBase(path string) {
	if filepath.IsAbs(path) {
		self.base = path
		return
	}
	self.base = filepath.Join(self.base, path)
}

func (self *OsFullReader) Normalize(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(self.base, path))
}

func (*OsFullReader) ReadAll(path string) ([]byte, error) {
	b, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return b, err
}

type MockFullReader struct {
	Map map[string]string
}

func NewMockFullReader(sources map[string]string) *MockFullReader {
	return &MockFullReader{Map: sources}
}

func (self *MockFullReader) Normalize(name string) string {
	return filepath.Clean(name)
}

func (self *MockFullReader) ReadAll(name string) ([]byte, error) {
	if s, ok := self.Map[name]; ok {
		return []byte(s), nil
	}
	return nil, nil
}
