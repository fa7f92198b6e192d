// Package archive persists mapped dictionaries as binary Amazon Ion
// documents in a directory chosen by the caller. Archives written by
// this module read back within this module; the format is not a
// portability contract.
package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/amazon-ion/ion-go/ion"
	"github.com/joeshaw/envdecode"
)

// Codec renders dictionaries of normalized values to Ion binary and
// back.
type Codec struct{}

func (Codec) Name() string {
	return "ion"
}

func (Codec) Marshal(dict map[string]any) ([]byte, error) {
	data, err := ion.MarshalBinary(dict)
	if err != nil {
		return nil, fmt.Errorf("cannot render the Ion document: %w", err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte) (map[string]any, error) {
	var dict map[string]any
	if err := ion.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("invalid Ion document: %w", err)
	}
	return dict, nil
}

// Store reads and writes named archives under one directory. Names
// are plain file names; anything that looks like a path is rejected.
// Concurrent Save and Load of the same name is the caller's problem.
type Store struct {
	dir   string
	codec Codec
}

// NewStore builds a Store rooted at dir, creating the directory when
// it does not exist yet.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("an archive store needs a directory")
	}
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create the archive directory %s: %w", dir, err)
		}
	case !info.IsDir():
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &Store{dir: dir, codec: Codec{}}, nil
}

// Temp returns a Store under the system temporary directory.
func Temp() (*Store, error) {
	return NewStore(filepath.Join(os.TempDir(), "modelmap-archive"))
}

// Documents returns a Store under the user's Documents directory, and
// an error on profiles where no home directory resolves.
func Documents() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("no documents directory on this profile: %w", err)
	}
	return NewStore(filepath.Join(home, "Documents"))
}

type envConfig struct {
	Dir string `env:"MODELMAP_ARCHIVE_DIR"`
}

// FromEnv builds a Store from the MODELMAP_ARCHIVE_DIR environment
// variable, falling back to Temp when it is not set.
func FromEnv() (*Store, error) {
	var cfg envConfig
	if err := envdecode.Decode(&cfg); err != nil || cfg.Dir == "" {
		return Temp()
	}
	return NewStore(cfg.Dir)
}

// Dir returns the directory the Store reads and writes.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes v as the archive called name. Dictionaries go through
// the Codec; any other value is handed to Ion directly.
func (s *Store) Save(name string, v any) error {
	if err := validName(name); err != nil {
		return err
	}
	var data []byte
	var err error
	if dict, ok := v.(map[string]any); ok {
		data, err = s.codec.Marshal(dict)
	} else {
		data, err = ion.MarshalBinary(v)
	}
	if err != nil {
		return fmt.Errorf("cannot render the archive %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("cannot write the archive %s: %w", name, err)
	}
	return nil
}

// Load reads the archive called name into target, a non-nil pointer.
// A *map[string]any target goes through the Codec.
func (s *Store) Load(name string, target any) error {
	if err := validName(name); err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("no archive called %s in %s: %w", name, s.dir, err)
	}
	if dict, ok := target.(*map[string]any); ok {
		parsed, err := s.codec.Unmarshal(data)
		if err != nil {
			return fmt.Errorf("cannot read the archive %s: %w", name, err)
		}
		*dict = parsed
		return nil
	}
	if err := ion.Unmarshal(data, target); err != nil {
		return fmt.Errorf("cannot read the archive %s: %w", name, err)
	}
	return nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("invalid archive name %q", name)
	}
	return nil
}
